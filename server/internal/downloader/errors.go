package downloader

import (
	"errors"
	"fmt"
)

var (
	ErrNoStreamAvailable = errors.New("no suitable stream available")
	ErrStreamNotFound    = errors.New("selected stream is no longer offered")
	ErrMergerUnavailable = errors.New("ffmpeg is required for high quality downloads, install it and add it to PATH")
	ErrSourceUnavailable = errors.New("source unavailable")
)

// MergeError carries the external tool diagnostic of a failed merge.
// Merges are never retried automatically.
type MergeError struct {
	ExitCode   int
	Diagnostic string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge failed (exit %d): %s", e.ExitCode, e.Diagnostic)
}

// TransferError wraps the cause of a failed stream transfer.
type TransferError struct {
	Stream string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of stream %s failed: %v", e.Stream, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }
