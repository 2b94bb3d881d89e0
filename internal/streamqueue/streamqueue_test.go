package streamqueue

import (
	"sync"
	"testing"
)

func TestPushPopOrder(t *testing.T) {
	q := New(4)

	for i := 0; i < 3; i++ {
		if err := q.Push([]byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 3; i++ {
		packet, ok := q.Pop()
		if !ok {
			t.Fatal("Pop returned ok=false before close")
		}

		if packet[0] != byte(i) {
			t.Fatalf("packet %d = %v, want %v", i, packet, []byte{byte(i)})
		}
	}
}

func TestCloseDrainsThenStops(t *testing.T) {
	q := New(4)

	if err := q.Push([]byte("a")); err != nil {
		t.Fatal(err)
	}

	q.Close()

	packet, ok := q.Pop()
	if !ok || string(packet) != "a" {
		t.Fatalf("Pop after close = %q, %v", packet, ok)
	}

	_, ok = q.Pop()
	if ok {
		t.Fatal("Pop returned ok=true on drained closed queue")
	}
}

func TestPushAfterCloseFails(t *testing.T) {
	q := New(4)
	q.Close()

	if err := q.Push([]byte("x")); err != ErrClosed {
		t.Fatalf("Push after close = %v, want ErrClosed", err)
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := New(2)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := 0; i < 100; i++ {
			_ = q.Push([]byte{byte(i)})
		}

		q.Close()
	}()

	count := 0

	for {
		_, ok := q.Pop()
		if !ok {
			break
		}

		count++
	}

	wg.Wait()

	if count != 100 {
		t.Fatalf("consumed %d packets, want 100", count)
	}
}
