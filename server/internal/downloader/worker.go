package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/grabtube/grabtube/server/internal/media"
	"github.com/spf13/afero"
)

const audioExt = "mp3"

// Events are the callbacks a worker reports through. The manager binds them
// so that every mutation of shared task state happens on its side of the
// boundary; workers never raise across it.
type Events struct {
	Progress func(taskId string, percent float64)
	Status   func(taskId string, status media.Status)
	Finished func(taskId string, path string)
	Failed   func(taskId string, message string)
}

// Worker executes the whole fetch-and-assemble pipeline for exactly one task
// on its own goroutine. It owns cancellation and temporary file cleanup for
// that task.
type Worker struct {
	taskId       string
	item         *media.Item
	outputDir    string
	streamId     string
	audioOnly    bool
	subtitles    bool
	subtitleLang string

	catalog Catalog
	merger  Merger
	fs      afero.Fs
	events  Events

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
}

func NewWorker(task *media.Task, catalog Catalog, merger Merger, fs afero.Fs, events Events) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		taskId:       task.Id,
		item:         task.Item,
		outputDir:    task.OutputDir,
		streamId:     task.StreamId,
		audioOnly:    task.AudioOnly,
		subtitles:    task.Subtitles,
		subtitleLang: task.SubtitleLang,
		catalog:      catalog,
		merger:       merger,
		fs:           fs,
		events:       events,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Start runs the pipeline on a new goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Cancel requests cooperative cancellation. The worker notices it at the
// next chunk callback or stage boundary, cleans up its temporary files and
// reports a cancelled status.
func (w *Worker) Cancel() {
	w.cancelled.Store(true)
	w.cancel()
}

// Running reports whether the pipeline has not yet reached a terminal state.
func (w *Worker) Running() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Done is closed once the pipeline has fully exited.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) run() {
	defer close(w.done)
	defer w.cancel()

	w.events.Status(w.taskId, media.StatusDownloading)

	path, err := w.pipeline()

	if w.isCancelled() {
		slog.Info("download cancelled", slog.String("id", w.taskId))
		w.events.Status(w.taskId, media.StatusCancelled)
		return
	}

	if err != nil {
		slog.Error("download failed",
			slog.String("id", w.taskId),
			slog.String("url", w.item.URL),
			slog.Any("err", err),
		)
		w.events.Status(w.taskId, media.StatusError)
		w.events.Failed(w.taskId, err.Error())
		return
	}

	slog.Info("download completed", slog.String("id", w.taskId), slog.String("path", path))
	w.events.Status(w.taskId, media.StatusCompleted)
	w.events.Finished(w.taskId, path)
}

func (w *Worker) pipeline() (string, error) {
	base := media.SanitizeFilename(w.item.Title)

	var (
		out string
		err error
	)

	switch {
	case w.audioOnly:
		out, err = w.downloadAudio(base)
	default:
		stream, ok := w.item.Stream(w.streamId)
		if !ok {
			return "", ErrStreamNotFound
		}
		if stream.Composite {
			out, err = w.downloadComposite(base, stream)
		} else {
			out, err = w.downloadAndMerge(base, stream)
		}
	}

	if err != nil || w.isCancelled() {
		return out, err
	}

	if w.subtitles && len(w.item.Captions) > 0 {
		w.downloadSubtitles(out)
	}

	return out, nil
}

func (w *Worker) downloadAudio(base string) (string, error) {
	stream, ok := w.item.BestAudio()
	if !ok {
		return "", ErrNoStreamAvailable
	}

	dest := filepath.Join(w.outputDir, base+"."+audioExt)
	return w.transfer(stream, dest, 0, stream.Size)
}

func (w *Worker) downloadComposite(base string, stream media.StreamDescriptor) (string, error) {
	dest := filepath.Join(w.outputDir, base+"."+stream.Ext())
	return w.transfer(stream, dest, 0, stream.Size)
}

// downloadAndMerge fetches a video-only stream and the best audio stream into
// uniquely named temporary files and combines them with the merger. The probe
// happens before any transfer so an absent merger never costs a download, and
// both temporary files are removed regardless of the merge outcome.
func (w *Worker) downloadAndMerge(base string, stream media.StreamDescriptor) (string, error) {
	if !w.merger.IsAvailable() {
		return "", ErrMergerUnavailable
	}

	audio, ok := w.item.BestAudio()
	if !ok {
		return "", ErrNoStreamAvailable
	}

	var (
		suffix   = uuid.NewString()[:8]
		videoTmp = filepath.Join(w.outputDir, fmt.Sprintf("%s.%s.video.tmp", base, suffix))
		audioTmp = filepath.Join(w.outputDir, fmt.Sprintf("%s.%s.audio.tmp", base, suffix))
	)

	defer w.removeFiles(videoTmp, audioTmp)

	// combined byte-weighted estimate, only when both sizes are known
	var total int64
	if stream.Size > 0 && audio.Size > 0 {
		total = stream.Size + audio.Size
	}

	if _, err := w.transfer(stream, videoTmp, 0, total); err != nil {
		return "", err
	}
	if w.isCancelled() {
		return "", nil
	}

	var offset int64
	if total > 0 {
		offset = stream.Size
	}

	if _, err := w.transfer(audio, audioTmp, offset, total); err != nil {
		return "", err
	}
	if w.isCancelled() {
		return "", nil
	}

	dest := filepath.Join(w.outputDir, base+".mp4")

	if err := w.merger.Combine(w.ctx, videoTmp, audioTmp, dest); err != nil {
		return "", err
	}

	return dest, nil
}

// transfer fetches one stream to dest, forwarding progress as a percentage of
// the grand total. offset is the byte count already accounted for by earlier
// legs of the same task. A partial file left by a failed or cancelled
// transfer is removed before returning.
func (w *Worker) transfer(stream media.StreamDescriptor, dest string, offset, grandTotal int64) (string, error) {
	onProgress := func(received, total int64) {
		whole := grandTotal
		if whole <= 0 {
			whole = total
		}
		if whole <= 0 {
			whole = stream.Size
		}
		if whole <= 0 {
			w.events.Progress(w.taskId, 0)
			return
		}

		percent := float64(offset+received) / float64(whole) * 100
		if percent > 100 {
			percent = 100
		}
		w.events.Progress(w.taskId, percent)
	}

	path, err := w.catalog.FetchStream(w.ctx, w.item, stream, dest, onProgress)
	if err != nil {
		w.removeFiles(dest)
		if w.isCancelled() {
			return "", context.Canceled
		}
		return "", &TransferError{Stream: stream.Id, Err: err}
	}

	if w.isCancelled() {
		w.removeFiles(path)
		return "", nil
	}

	return path, nil
}

// downloadSubtitles fetches the requested caption track and writes it beside
// the output file. Best effort: any failure is logged and swallowed, it never
// fails the task.
func (w *Worker) downloadSubtitles(outputPath string) {
	caption, ok := w.item.Caption(w.subtitleLang)
	if !ok {
		return
	}

	content, err := w.catalog.FetchCaption(w.ctx, w.item, caption)
	if err != nil {
		slog.Warn("subtitle fetch failed",
			slog.String("id", w.taskId),
			slog.String("lang", caption.Code),
			slog.Any("err", err),
		)
		return
	}

	srtPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".srt"

	if err := afero.WriteFile(w.fs, srtPath, []byte(content), 0644); err != nil {
		slog.Warn("subtitle save failed", slog.String("id", w.taskId), slog.Any("err", err))
	}
}

func (w *Worker) removeFiles(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if exists, _ := afero.Exists(w.fs, p); exists {
			w.fs.Remove(p)
		}
	}
}

func (w *Worker) isCancelled() bool {
	return w.cancelled.Load() || w.ctx.Err() != nil
}
