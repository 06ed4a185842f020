package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grabtube/grabtube/server/internal/downloader"
	"github.com/grabtube/grabtube/server/internal/events"
	"github.com/grabtube/grabtube/server/internal/media"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowCatalog serves one composite stream per item and blocks each transfer
// on a per-item gate until the test releases it.
type slowCatalog struct {
	mu       sync.Mutex
	fs       afero.Fs
	gates    map[string]chan struct{}
	fetched  []string
	inFlight int
	maxSeen  int
	fail     bool
}

func newSlowCatalog(fs afero.Fs) *slowCatalog {
	return &slowCatalog{fs: fs, gates: make(map[string]chan struct{})}
}

func (c *slowCatalog) gateItem(itemId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gates[itemId] = make(chan struct{})
}

func (c *slowCatalog) release(itemId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gate, ok := c.gates[itemId]; ok {
		close(gate)
		delete(c.gates, itemId)
	}
}

func (c *slowCatalog) setFail(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fail
}

func (c *slowCatalog) fetchedItems() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.fetched))
	copy(out, c.fetched)
	return out
}

func (c *slowCatalog) running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *slowCatalog) maxConcurrent() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSeen
}

func (c *slowCatalog) Resolve(ctx context.Context, url string) (*media.Item, error) {
	return nil, errors.New("not implemented")
}

func (c *slowCatalog) FetchStream(
	ctx context.Context,
	item *media.Item,
	stream media.StreamDescriptor,
	dest string,
	onProgress downloader.ProgressFunc,
) (string, error) {
	c.mu.Lock()
	c.fetched = append(c.fetched, item.Id)
	c.inFlight++
	if c.inFlight > c.maxSeen {
		c.maxSeen = c.inFlight
	}
	gate := c.gates[item.Id]
	fail := c.fail
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if fail {
		return "", errors.New("injected failure")
	}

	if onProgress != nil {
		onProgress(10, 10)
	}
	return dest, afero.WriteFile(c.fs, dest, []byte("payload"), 0644)
}

func (c *slowCatalog) FetchCaption(ctx context.Context, item *media.Item, caption media.CaptionDescriptor) (string, error) {
	return "", errors.New("not implemented")
}

type noMerger struct{}

func (noMerger) IsAvailable() bool { return false }
func (noMerger) Combine(ctx context.Context, videoPath, audioPath, outputPath string) error {
	return errors.New("not implemented")
}

func testItem(n int) *media.Item {
	id := fmt.Sprintf("item_%d", n)
	return &media.Item{
		URL:   "https://example.com/watch?v=" + id,
		Id:    id,
		Title: fmt.Sprintf("Video %d", n),
		Videos: []media.StreamDescriptor{
			{Id: "22", Quality: "720p", MimeType: "video/mp4", Size: 10, Composite: true, SourceURL: "src"},
		},
	}
}

func newTestManager(t *testing.T, limit int) (*Manager, *slowCatalog) {
	t.Helper()

	fs := afero.NewMemMapFs()
	cat := newSlowCatalog(fs)

	m := New(Config{
		Catalog:     cat,
		Merger:      noMerger{},
		Fs:          fs,
		Fabric:      events.New(),
		Concurrency: limit,
	})
	return m, cat
}

func status(m *Manager, id string) media.Status {
	task, ok := m.GetTask(id)
	if !ok {
		return ""
	}
	return task.Status
}

func waitStatus(t *testing.T, m *Manager, id string, want media.Status) {
	t.Helper()
	require.Eventually(t, func() bool { return status(m, id) == want },
		time.Second*5, time.Millisecond*10,
		"task %s never reached %s (now %s)", id, want, status(m, id))
}

func TestAddTaskAssignsSequentialIds(t *testing.T) {
	m, _ := newTestManager(t, 2)

	first := m.AddTask(testItem(1), "22", false, false, "")
	second := m.AddTask(testItem(2), "22", false, false, "")

	assert.Equal(t, "task_1", first)
	assert.Equal(t, "task_2", second)

	task, ok := m.GetTask(first)
	require.True(t, ok)
	assert.Equal(t, media.StatusPending, task.Status)

	snapshot := m.QueueStatus()
	assert.Equal(t, 0, snapshot.Downloading)
	assert.Equal(t, 2, snapshot.Pending)
}

func TestConcurrencyLimitNeverExceeded(t *testing.T) {
	m, cat := newTestManager(t, 2)

	var ids []string
	for n := 1; n <= 4; n++ {
		item := testItem(n)
		cat.gateItem(item.Id)
		ids = append(ids, m.AddTask(item, "22", false, false, ""))
	}

	m.StartAll()

	require.Eventually(t, func() bool { return cat.running() == 2 },
		time.Second*5, time.Millisecond*10)

	for n := 1; n <= 4; n++ {
		cat.release(testItem(n).Id)
	}
	for _, id := range ids {
		waitStatus(t, m, id, media.StatusCompleted)
	}

	assert.Equal(t, 2, cat.maxConcurrent())
}

func TestAdmissionIsFIFO(t *testing.T) {
	m, cat := newTestManager(t, 1)

	var ids []string
	for n := 1; n <= 3; n++ {
		item := testItem(n)
		cat.gateItem(item.Id)
		ids = append(ids, m.AddTask(item, "22", false, false, ""))
	}

	m.StartAll()

	for n := 1; n <= 3; n++ {
		want := n
		require.Eventually(t, func() bool { return len(cat.fetchedItems()) == want },
			time.Second*5, time.Millisecond*10)
		cat.release(testItem(n).Id)
	}

	for _, id := range ids {
		waitStatus(t, m, id, media.StatusCompleted)
	}

	assert.Equal(t, []string{"item_1", "item_2", "item_3"}, cat.fetchedItems())
}

func TestQueuedTaskAdmittedOnCompletion(t *testing.T) {
	m, cat := newTestManager(t, 2)

	a := testItem(1)
	b := testItem(2)
	c := testItem(3)
	cat.gateItem(a.Id)
	cat.gateItem(b.Id)

	idA := m.AddTask(a, "22", false, false, "")
	idB := m.AddTask(b, "22", false, false, "")
	idC := m.AddTask(c, "22", false, false, "")

	m.StartAll()

	waitStatus(t, m, idA, media.StatusDownloading)
	waitStatus(t, m, idB, media.StatusDownloading)
	assert.Equal(t, media.StatusPending, status(m, idC))

	cat.release(a.Id)

	waitStatus(t, m, idA, media.StatusCompleted)
	waitStatus(t, m, idC, media.StatusCompleted)

	cat.release(b.Id)
	waitStatus(t, m, idB, media.StatusCompleted)
}

func TestCompletionRecordsOutputPath(t *testing.T) {
	m, _ := newTestManager(t, 1)

	id := m.AddTask(testItem(1), "22", false, false, "")
	m.StartTask(id)

	waitStatus(t, m, id, media.StatusCompleted)

	require.Eventually(t, func() bool {
		task, ok := m.GetTask(id)
		return ok && task.OutputPath == "Video 1.mp4"
	}, time.Second*5, time.Millisecond*10)

	task, _ := m.GetTask(id)
	assert.Empty(t, task.Error)
}

func TestCancelQueuedTask(t *testing.T) {
	m, cat := newTestManager(t, 1)

	id := m.AddTask(testItem(1), "22", false, false, "")
	m.CancelTask(id)

	// synchronous, no worker was ever spawned
	assert.Equal(t, media.StatusCancelled, status(m, id))
	assert.Empty(t, cat.fetchedItems())
}

func TestCancelRunningTaskFreesCapacity(t *testing.T) {
	m, cat := newTestManager(t, 1)

	a := testItem(1)
	cat.gateItem(a.Id)

	idA := m.AddTask(a, "22", false, false, "")
	idB := m.AddTask(testItem(2), "22", false, false, "")

	m.StartTask(idA)
	waitStatus(t, m, idA, media.StatusDownloading)

	m.StartTask(idB)
	assert.Equal(t, media.StatusPending, status(m, idB))

	m.CancelTask(idA)

	waitStatus(t, m, idA, media.StatusCancelled)
	waitStatus(t, m, idB, media.StatusCompleted)
}

func TestCancelCompletedTaskIsNoOp(t *testing.T) {
	m, _ := newTestManager(t, 1)

	id := m.AddTask(testItem(1), "22", false, false, "")
	m.StartTask(id)
	waitStatus(t, m, id, media.StatusCompleted)

	m.CancelTask(id)
	assert.Equal(t, media.StatusCompleted, status(m, id))
}

func TestRetryAfterFailure(t *testing.T) {
	m, cat := newTestManager(t, 1)

	cat.setFail(true)

	id := m.AddTask(testItem(1), "22", false, false, "")
	m.StartTask(id)
	waitStatus(t, m, id, media.StatusError)

	require.Eventually(t, func() bool {
		task, ok := m.GetTask(id)
		return ok && task.Error != ""
	}, time.Second*5, time.Millisecond*10)

	task, _ := m.GetTask(id)
	assert.Contains(t, task.Error, "injected failure")

	cat.setFail(false)

	m.StartTask(id)
	waitStatus(t, m, id, media.StatusCompleted)

	task, _ = m.GetTask(id)
	assert.Empty(t, task.Error, "retry must clear the previous error")
}

func TestRetryCancelledTask(t *testing.T) {
	m, _ := newTestManager(t, 1)

	id := m.AddTask(testItem(1), "22", false, false, "")
	m.CancelTask(id)
	require.Equal(t, media.StatusCancelled, status(m, id))

	m.StartTask(id)
	waitStatus(t, m, id, media.StatusCompleted)
}

func TestRemoveTask(t *testing.T) {
	m, _ := newTestManager(t, 1)

	id := m.AddTask(testItem(1), "22", false, false, "")
	m.RemoveTask(id)

	_, ok := m.GetTask(id)
	assert.False(t, ok)
	assert.Empty(t, m.Tasks())
}

func TestClearCompleted(t *testing.T) {
	m, _ := newTestManager(t, 1)

	done := m.AddTask(testItem(1), "22", false, false, "")
	kept := m.AddTask(testItem(2), "22", false, false, "")

	m.StartTask(done)
	waitStatus(t, m, done, media.StatusCompleted)

	m.ClearCompleted()

	_, ok := m.GetTask(done)
	assert.False(t, ok)

	task, ok := m.GetTask(kept)
	require.True(t, ok)
	assert.Equal(t, media.StatusPending, task.Status)
}

func TestTasksPreservesInsertionOrder(t *testing.T) {
	m, _ := newTestManager(t, 1)

	for n := 1; n <= 3; n++ {
		m.AddTask(testItem(n), "22", false, false, "")
	}

	tasks := m.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, "task_1", tasks[0].Id)
	assert.Equal(t, "task_2", tasks[1].Id)
	assert.Equal(t, "task_3", tasks[2].Id)
}

func TestRaisingLimitDrainsQueue(t *testing.T) {
	m, cat := newTestManager(t, 1)

	var ids []string
	for n := 1; n <= 3; n++ {
		item := testItem(n)
		cat.gateItem(item.Id)
		ids = append(ids, m.AddTask(item, "22", false, false, ""))
	}

	m.StartAll()

	require.Eventually(t, func() bool { return cat.running() == 1 },
		time.Second*5, time.Millisecond*10)

	m.SetConcurrencyLimit(3)

	require.Eventually(t, func() bool { return cat.running() == 3 },
		time.Second*5, time.Millisecond*10)

	for n := 1; n <= 3; n++ {
		cat.release(testItem(n).Id)
	}
	for _, id := range ids {
		waitStatus(t, m, id, media.StatusCompleted)
	}
}

func TestLoweringLimitNeverPreempts(t *testing.T) {
	m, cat := newTestManager(t, 2)

	a := testItem(1)
	b := testItem(2)
	cat.gateItem(a.Id)
	cat.gateItem(b.Id)

	idA := m.AddTask(a, "22", false, false, "")
	idB := m.AddTask(b, "22", false, false, "")

	m.StartAll()
	waitStatus(t, m, idA, media.StatusDownloading)
	waitStatus(t, m, idB, media.StatusDownloading)

	m.SetConcurrencyLimit(1)

	assert.Equal(t, media.StatusDownloading, status(m, idA))
	assert.Equal(t, media.StatusDownloading, status(m, idB))

	cat.release(a.Id)
	cat.release(b.Id)
	waitStatus(t, m, idA, media.StatusCompleted)
	waitStatus(t, m, idB, media.StatusCompleted)
}

func TestQueueStatusReflectsRegistry(t *testing.T) {
	m, cat := newTestManager(t, 1)

	a := testItem(1)
	cat.gateItem(a.Id)

	idA := m.AddTask(a, "22", false, false, "")
	m.AddTask(testItem(2), "22", false, false, "")

	m.StartTask(idA)
	waitStatus(t, m, idA, media.StatusDownloading)

	snapshot := m.QueueStatus()
	assert.Equal(t, 1, snapshot.Downloading)
	assert.Equal(t, 1, snapshot.Pending)

	cat.release(a.Id)
	waitStatus(t, m, idA, media.StatusCompleted)

	snapshot = m.QueueStatus()
	assert.Equal(t, 0, snapshot.Downloading)
	assert.Equal(t, 1, snapshot.Pending)
}

func TestSetOutputDirectory(t *testing.T) {
	m, _ := newTestManager(t, 1)

	require.NoError(t, m.SetOutputDirectory("/downloads"))

	id := m.AddTask(testItem(1), "22", false, false, "")
	m.StartTask(id)
	waitStatus(t, m, id, media.StatusCompleted)

	require.Eventually(t, func() bool {
		task, ok := m.GetTask(id)
		return ok && task.OutputPath == "/downloads/Video 1.mp4"
	}, time.Second*5, time.Millisecond*10)
}

func TestSetOutputDirectoryFailureIsSurfaced(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	m := New(Config{
		Catalog: newSlowCatalog(fs),
		Merger:  noMerger{},
		Fs:      fs,
		Fabric:  events.New(),
	})

	assert.Error(t, m.SetOutputDirectory("/downloads"))
}

func TestProgressEventsReachSubscribers(t *testing.T) {
	fs := afero.NewMemMapFs()
	cat := newSlowCatalog(fs)
	fabric := events.New()

	var (
		mu        sync.Mutex
		completed []events.Completed
	)
	require.NoError(t, fabric.SubscribeCompleted(func(e events.Completed) {
		mu.Lock()
		completed = append(completed, e)
		mu.Unlock()
	}))

	m := New(Config{
		Catalog:     cat,
		Merger:      noMerger{},
		Fs:          fs,
		Fabric:      fabric,
		Concurrency: 1,
	})

	id := m.AddTask(testItem(1), "22", false, false, "")
	m.StartTask(id)
	waitStatus(t, m, id, media.StatusCompleted)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == 1
	}, time.Second*5, time.Millisecond*10)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, id, completed[0].TaskId)
	assert.Equal(t, "Video 1.mp4", completed[0].Path)
}
