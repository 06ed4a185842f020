package merger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"

	"github.com/grabtube/grabtube/server/internal/downloader"
)

const diagnosticLimit = 200

// FFmpeg combines separately fetched video and audio files with the ffmpeg
// binary. Implements downloader.Merger.
type FFmpeg struct {
	path string
}

func New(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{path: path}
}

// IsAvailable probes for the binary on PATH.
func (f *FFmpeg) IsAvailable() bool {
	_, err := exec.LookPath(f.path)
	return err == nil
}

// Combine muxes videoPath and audioPath into outputPath, overwriting any
// pre-existing file there. The video stream is copied, audio is re-encoded
// to AAC. Failure carries the tool's exit code and trailing stderr.
func (f *FFmpeg) Combine(ctx context.Context, videoPath, audioPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, f.path,
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	slog.Info("merging streams",
		slog.String("video", videoPath),
		slog.String("audio", audioPath),
		slog.String("output", outputPath),
	)

	if err := cmd.Run(); err != nil {
		exitCode := -1

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return &downloader.MergeError{
			ExitCode:   exitCode,
			Diagnostic: tail(stderr.String(), diagnosticLimit),
		}
	}

	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
