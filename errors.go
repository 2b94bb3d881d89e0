package sla

import "errors"

// ErrorKind classifies a decode-time failure so callers can distinguish
// "this stream is not SLA at all" from "this SLA stream is damaged"
// without parsing error strings (§7).
type ErrorKind int

// Error kinds returned by Decoder operations.
const (
	// ErrKindNone is the zero value; never returned.
	ErrKindNone ErrorKind = iota
	// ErrKindInvalidFormat means the header signature or version is not
	// one this decoder understands.
	ErrKindInvalidFormat
	// ErrKindCRCMismatch means a header or block failed its CRC-16 check.
	ErrKindCRCMismatch
	// ErrKindTruncated means the stream ended before a complete header or
	// block could be read.
	ErrKindTruncated
	// ErrKindUnsupportedParameter means the header names a channel count,
	// bit depth, or processing mode this build does not implement.
	ErrKindUnsupportedParameter
	// ErrKindSyncLost means a block did not start with BlockSyncCode.
	ErrKindSyncLost
)

// String returns a short human-readable label for k.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindInvalidFormat:
		return "invalid format"
	case ErrKindCRCMismatch:
		return "crc mismatch"
	case ErrKindTruncated:
		return "truncated"
	case ErrKindUnsupportedParameter:
		return "unsupported parameter"
	case ErrKindSyncLost:
		return "sync code lost"
	default:
		return "none"
	}
}

// Sentinel errors. Every error DecodeHeader or (*Decoder).DecodeBlock
// returns satisfies errors.Is against exactly one of these, so callers can branch with errors.Is instead of inspecting
// ErrorKind via a type assertion.
var (
	ErrInvalidFormat        = errors.New("sla: invalid stream format")
	ErrCRCMismatch          = errors.New("sla: crc-16 mismatch")
	ErrTruncated            = errors.New("sla: stream truncated")
	ErrUnsupportedParameter = errors.New("sla: unsupported parameter")
	ErrSyncLost             = errors.New("sla: block sync code not found")
)

// Kind returns the ErrorKind an sla sentinel error corresponds to, or
// ErrKindNone if err does not wrap one of this package's sentinels.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return ErrKindInvalidFormat
	case errors.Is(err, ErrCRCMismatch):
		return ErrKindCRCMismatch
	case errors.Is(err, ErrTruncated):
		return ErrKindTruncated
	case errors.Is(err, ErrUnsupportedParameter):
		return ErrKindUnsupportedParameter
	case errors.Is(err, ErrSyncLost):
		return ErrKindSyncLost
	default:
		return ErrKindNone
	}
}
