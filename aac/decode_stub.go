//go:build !with_aac

package aac

import (
	"io"

	"github.com/mycophonic/sla"
)

// Decode returns ErrNotSupported when built without the with_aac tag.
func Decode(_ io.ReadSeeker) ([]byte, sla.PCMFormat, error) {
	return nil, sla.PCMFormat{}, ErrNotSupported
}
