package downloader

import (
	"context"

	"github.com/grabtube/grabtube/server/internal/media"
)

// ProgressFunc receives byte counts while a transfer is in flight.
// total is 0 when the stream size is unknown.
type ProgressFunc func(received, total int64)

// Catalog resolves source URLs into media items and performs the byte
// transfer for a chosen stream. Implementations must return between progress
// callbacks once ctx is cancelled; the worker enforces cancellation, not the
// catalog.
type Catalog interface {
	Resolve(ctx context.Context, url string) (*media.Item, error)
	FetchStream(ctx context.Context, item *media.Item, stream media.StreamDescriptor, dest string, onProgress ProgressFunc) (string, error)
	FetchCaption(ctx context.Context, item *media.Item, caption media.CaptionDescriptor) (string, error)
}

// Merger combines a video-only and an audio-only file into one output file.
// Presence is optional and must be probed with IsAvailable before use.
type Merger interface {
	IsAvailable() bool
	Combine(ctx context.Context, videoPath, audioPath, outputPath string) error
}
