package manager

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/grabtube/grabtube/server/internal/downloader"
	"github.com/grabtube/grabtube/server/internal/events"
	"github.com/grabtube/grabtube/server/internal/media"
	"github.com/spf13/afero"
)

// Config carries the collaborators and initial settings of a Manager.
type Config struct {
	Catalog     downloader.Catalog
	Merger      downloader.Merger
	Fs          afero.Fs
	Fabric      *events.Fabric
	Concurrency int
	OutputDir   string
}

// Manager owns the task registry, the FIFO wait queue and the worker
// lifecycle. A single mutex guards every registry mutation so the
// concurrency limit stays exact; events are published outside the lock with
// value payloads.
type Manager struct {
	mu      sync.Mutex
	tasks   map[string]*media.Task
	order   []string
	workers map[string]*downloader.Worker
	queue   []string
	counter int

	limit     int
	outputDir string

	catalog downloader.Catalog
	merger  downloader.Merger
	fs      afero.Fs
	fabric  *events.Fabric
}

func New(cfg Config) *Manager {
	limit := cfg.Concurrency
	if limit < 1 {
		limit = 1
	}

	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &Manager{
		tasks:     make(map[string]*media.Task),
		workers:   make(map[string]*downloader.Worker),
		limit:     limit,
		outputDir: cfg.OutputDir,
		catalog:   cfg.Catalog,
		merger:    cfg.Merger,
		fs:        fs,
		fabric:    cfg.Fabric,
	}
}

// AddTask registers a new pending task and appends it to the wait queue.
// Never blocks; the task starts only on StartTask/StartAll or queue drain.
func (m *Manager) AddTask(item *media.Item, streamId string, audioOnly, subtitles bool, lang string) string {
	m.mu.Lock()

	m.counter++
	id := fmt.Sprintf("task_%d", m.counter)

	task := &media.Task{
		Id:           id,
		Item:         item,
		OutputDir:    m.outputDir,
		StreamId:     streamId,
		AudioOnly:    audioOnly,
		Subtitles:    subtitles,
		SubtitleLang: lang,
		Status:       media.StatusPending,
	}

	m.tasks[id] = task
	m.order = append(m.order, id)
	m.queue = append(m.queue, id)

	snapshot := m.queueStatusLocked()
	m.mu.Unlock()

	slog.Info("task added", slog.String("id", id), slog.String("title", item.Title))
	m.fabric.PublishQueueStatus(snapshot)

	return id
}

// StartTask admits a task if capacity allows, otherwise leaves it queued.
// Running and completed tasks are a no-op.
func (m *Manager) StartTask(id string) {
	m.mu.Lock()
	m.startLocked(id)
	snapshot := m.queueStatusLocked()
	m.mu.Unlock()

	m.fabric.PublishQueueStatus(snapshot)
}

// StartAll admits every pending task, in registry order.
func (m *Manager) StartAll() {
	m.mu.Lock()
	ids := slices.Clone(m.order)
	m.mu.Unlock()

	for _, id := range ids {
		if task, ok := m.GetTask(id); ok && task.Status == media.StatusPending {
			m.StartTask(id)
		}
	}
}

func (m *Manager) startLocked(id string) {
	task, ok := m.tasks[id]
	if !ok {
		return
	}

	if w, running := m.workers[id]; running && w.Running() {
		return
	}

	if task.Status == media.StatusCompleted || task.Status == media.StatusDownloading {
		return
	}

	if m.runningLocked() >= m.limit {
		if !slices.Contains(m.queue, id) {
			m.queue = append(m.queue, id)
		}
		return
	}

	m.admitLocked(id, task)
}

// admitLocked binds a fresh worker to the task and starts its pipeline.
// Caller holds the registry lock and has verified capacity.
func (m *Manager) admitLocked(id string, task *media.Task) {
	if i := slices.Index(m.queue, id); i >= 0 {
		m.queue = slices.Delete(m.queue, i, i+1)
	}

	task.OutputDir = m.outputDir
	task.Error = ""
	task.Progress = 0

	w := downloader.NewWorker(task, m.catalog, m.merger, m.fs, downloader.Events{
		Progress: m.onProgress,
		Status:   m.onStatus,
		Finished: m.onFinished,
		Failed:   m.onFailed,
	})

	m.workers[id] = w

	slog.Info("task admitted", slog.String("id", id))
	w.Start()
}

// CancelTask signals the bound worker, or cancels a queued-only task
// immediately and synchronously.
func (m *Manager) CancelTask(id string) {
	m.mu.Lock()

	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return
	}

	if w, bound := m.workers[id]; bound && w.Running() {
		w.Cancel()
		m.mu.Unlock()
		// the worker's own cancellation path reports the terminal state
		return
	}

	if i := slices.Index(m.queue, id); i >= 0 {
		m.queue = slices.Delete(m.queue, i, i+1)
	}

	applied := task.Status.CanTransition(media.StatusCancelled)
	if applied {
		task.Status = media.StatusCancelled
	}

	snapshot := m.queueStatusLocked()
	m.mu.Unlock()

	if applied {
		m.fabric.PublishStatus(events.StatusChange{TaskId: id, Status: media.StatusCancelled})
	}
	m.fabric.PublishQueueStatus(snapshot)
}

// RemoveTask cancels the task first, then deletes its record and worker
// handle. Completion and cancellation never delete records, only removal and
// bulk clear do.
func (m *Manager) RemoveTask(id string) {
	m.CancelTask(id)

	m.mu.Lock()

	delete(m.tasks, id)
	delete(m.workers, id)

	if i := slices.Index(m.order, id); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	if i := slices.Index(m.queue, id); i >= 0 {
		m.queue = slices.Delete(m.queue, i, i+1)
	}

	snapshot := m.queueStatusLocked()
	m.mu.Unlock()

	m.fabric.PublishQueueStatus(snapshot)
}

// ClearCompleted removes every completed task record.
func (m *Manager) ClearCompleted() {
	m.mu.Lock()

	for id, task := range m.tasks {
		if task.Status != media.StatusCompleted {
			continue
		}
		delete(m.tasks, id)
		delete(m.workers, id)
		if i := slices.Index(m.order, id); i >= 0 {
			m.order = slices.Delete(m.order, i, i+1)
		}
	}

	snapshot := m.queueStatusLocked()
	m.mu.Unlock()

	m.fabric.PublishQueueStatus(snapshot)
}

// SetConcurrencyLimit bounds simultaneously running workers. Raising it only
// affects future admissions, it never preempts a running worker.
func (m *Manager) SetConcurrencyLimit(n int) {
	if n < 1 {
		n = 1
	}

	m.mu.Lock()
	m.limit = n
	m.mu.Unlock()

	m.drain()
}

// SetOutputDirectory changes the destination for subsequently admitted
// tasks. Directory creation is the only manager-side I/O and its failure is
// surfaced synchronously.
func (m *Manager) SetOutputDirectory(path string) error {
	if err := m.fs.MkdirAll(path, 0755); err != nil {
		return err
	}

	m.mu.Lock()
	m.outputDir = path
	m.mu.Unlock()

	return nil
}

// GetTask returns a copy of the task record.
func (m *Manager) GetTask(id string) (media.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return media.Task{}, false
	}
	return *task, true
}

// Tasks returns copies of all task records in registry order.
func (m *Manager) Tasks() []media.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	tasks := make([]media.Task, 0, len(m.order))
	for _, id := range m.order {
		if task, ok := m.tasks[id]; ok {
			tasks = append(tasks, *task)
		}
	}
	return tasks
}

// TaskInfo exposes the title and source URL of a task for archiving.
func (m *Manager) TaskInfo(id string) (title, source string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, found := m.tasks[id]
	if !found || task.Item == nil {
		return "", "", false
	}
	return task.Item.Title, task.Item.URL, true
}

// QueueStatus recomputes the aggregate snapshot from the registry.
func (m *Manager) QueueStatus() events.QueueStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queueStatusLocked()
}

// drain promotes queued tasks into running workers while capacity allows.
// Together with explicit StartTask/StartAll calls this is the only place
// workers are spawned, which keeps the limit exact under concurrent
// completions. Admission is strict FIFO relative to enqueue time.
func (m *Manager) drain() {
	m.mu.Lock()

	for len(m.queue) > 0 && m.runningLocked() < m.limit {
		id := m.queue[0]
		m.queue = m.queue[1:]

		task, ok := m.tasks[id]
		if !ok || task.Status == media.StatusDownloading || task.Status == media.StatusCompleted {
			continue
		}

		m.admitLocked(id, task)
	}

	snapshot := m.queueStatusLocked()
	m.mu.Unlock()

	m.fabric.PublishQueueStatus(snapshot)
}

func (m *Manager) runningLocked() int {
	count := 0
	for _, w := range m.workers {
		if w.Running() {
			count++
		}
	}
	return count
}

func (m *Manager) queueStatusLocked() events.QueueStatus {
	var snapshot events.QueueStatus
	for _, task := range m.tasks {
		switch task.Status {
		case media.StatusDownloading:
			snapshot.Downloading++
		case media.StatusPending:
			snapshot.Pending++
		}
	}
	return snapshot
}

// worker callbacks; each applies the mutation under the lock and publishes
// the event outside it.

func (m *Manager) onProgress(id string, percent float64) {
	m.mu.Lock()

	task, ok := m.tasks[id]
	if !ok || percent < task.Progress {
		m.mu.Unlock()
		return
	}
	task.Progress = percent

	m.mu.Unlock()

	m.fabric.PublishProgress(events.Progress{TaskId: id, Percent: percent})
}

func (m *Manager) onStatus(id string, status media.Status) {
	m.mu.Lock()

	task, ok := m.tasks[id]
	if !ok || !task.Status.CanTransition(status) {
		m.mu.Unlock()
		return
	}
	task.Status = status

	if status.Terminal() {
		delete(m.workers, id)
	}

	snapshot := m.queueStatusLocked()
	m.mu.Unlock()

	m.fabric.PublishStatus(events.StatusChange{TaskId: id, Status: status})
	m.fabric.PublishQueueStatus(snapshot)

	if status.Terminal() {
		m.drain()
	}
}

func (m *Manager) onFinished(id string, path string) {
	m.mu.Lock()

	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	task.OutputPath = path

	m.mu.Unlock()

	m.fabric.PublishCompleted(events.Completed{TaskId: id, Path: path})
}

func (m *Manager) onFailed(id string, message string) {
	m.mu.Lock()

	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	task.Error = message

	m.mu.Unlock()

	m.fabric.PublishFailed(events.Failed{TaskId: id, Message: message})
}
