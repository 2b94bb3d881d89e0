// Package partition implements the block-boundary search (§4.9): given a
// channel's full block-candidate cost table, it finds the cut points that
// minimise total estimated code length via a shortest-path search over a
// DAG of candidate boundaries.
package partition

import (
	"container/heap"
	"context"
	"math"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// SearchBlockNumSamplesDelta is the granularity candidate boundaries are
// placed at, in samples.
const SearchBlockNumSamplesDelta = 512

// CostFunc estimates the coding cost, in bits, of one candidate block
// spanning samples[lo:hi) of one channel.
type CostFunc func(lo, hi int) float64

// Plan is the chosen sequence of block boundaries: Bounds[0]==0,
// Bounds[len(Bounds)-1]==total sample count, and consecutive entries are
// the exclusive block boundaries in ascending order.
type Plan struct {
	Bounds []int
}

// Optimise finds the boundary sequence over [0,total) that minimises
// total estimated cost, considering only candidate blocks whose
// boundaries fall on multiples of SearchBlockNumSamplesDelta (or on total)
// and whose length falls in [minBlock, maxBlock]. If no such sequence
// covers [0,total), it returns the single block [0,total).
func Optimise(total, minBlock, maxBlock int, cost CostFunc) Plan {
	if total <= 0 {
		return Plan{Bounds: []int{0}}
	}

	nodes := candidateNodes(total)

	dist := make([]float64, len(nodes))
	prev := make([]int, len(nodes))

	for i := range dist {
		dist[i] = math.Inf(1)
		prev[i] = -1
	}

	dist[0] = 0

	pq := &priorityQueue{{node: 0, dist: 0}}
	heap.Init(pq)

	visited := make([]bool, len(nodes))

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem) //nolint:forcetypeassert // priorityQueue only ever holds pqItem

		if visited[item.node] {
			continue
		}

		visited[item.node] = true

		from := nodes[item.node]

		for j := item.node + 1; j < len(nodes); j++ {
			to := nodes[j]
			length := to - from

			if length < minBlock {
				continue
			}

			if length > maxBlock {
				break
			}

			weight := cost(from, to)
			nd := dist[item.node] + weight

			if nd < dist[j] {
				dist[j] = nd
				prev[j] = item.node
				heap.Push(pq, pqItem{node: j, dist: nd})
			}
		}
	}

	last := len(nodes) - 1

	if math.IsInf(dist[last], 1) {
		return Plan{Bounds: []int{0, total}}
	}

	var path []int

	for n := last; n != -1; n = prev[n] {
		path = append(path, nodes[n])
	}

	lo.Reverse(path)

	return Plan{Bounds: path}
}

func candidateNodes(total int) []int {
	nodes := []int{0}

	for n := SearchBlockNumSamplesDelta; n < total; n += SearchBlockNumSamplesDelta {
		nodes = append(nodes, n)
	}

	nodes = append(nodes, total)

	return lo.Uniq(nodes)
}

// EstimatePerChannel runs estimate concurrently for every channel's
// samples, returning results in the same order.
func EstimatePerChannel(ctx context.Context, channels [][]float64, estimate func([]float64) Plan) ([]Plan, error) {
	plans := make([]Plan, len(channels))

	g, ctx := errgroup.WithContext(ctx)

	for i, samples := range channels {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			plans[i] = estimate(samples)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return plans, nil
}

type pqItem struct {
	node int
	dist float64
}

type priorityQueue []pqItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) { *q = append(*q, x.(pqItem)) } //nolint:forcetypeassert
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]

	return item
}
