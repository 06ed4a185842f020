package events

import (
	"github.com/asaskevich/EventBus"
	"github.com/grabtube/grabtube/server/internal/media"
)

// Topics carried by the fabric. Payloads are value copies so observers can
// never touch manager-owned state.
const (
	TopicProgress    = "task:progress"
	TopicStatus      = "task:status"
	TopicCompleted   = "task:completed"
	TopicFailed      = "task:failed"
	TopicQueueStatus = "queue:status"
)

type Progress struct {
	TaskId  string  `json:"task_id"`
	Percent float64 `json:"percent"`
}

type StatusChange struct {
	TaskId string       `json:"task_id"`
	Status media.Status `json:"status"`
}

type Completed struct {
	TaskId string `json:"task_id"`
	Path   string `json:"path"`
}

type Failed struct {
	TaskId  string `json:"task_id"`
	Message string `json:"message"`
}

// QueueStatus is the aggregate snapshot recomputed from the task registry
// after every admission, completion, failure or cancellation.
type QueueStatus struct {
	Downloading int `json:"downloading"`
	Pending     int `json:"pending"`
}

// Fabric is the publish path from workers through the manager to external
// observers, backed by a thread-safe event bus.
type Fabric struct {
	bus EventBus.Bus
}

func New() *Fabric {
	return &Fabric{bus: EventBus.New()}
}

func (f *Fabric) PublishProgress(e Progress)       { f.bus.Publish(TopicProgress, e) }
func (f *Fabric) PublishStatus(e StatusChange)     { f.bus.Publish(TopicStatus, e) }
func (f *Fabric) PublishCompleted(e Completed)     { f.bus.Publish(TopicCompleted, e) }
func (f *Fabric) PublishFailed(e Failed)           { f.bus.Publish(TopicFailed, e) }
func (f *Fabric) PublishQueueStatus(e QueueStatus) { f.bus.Publish(TopicQueueStatus, e) }

func (f *Fabric) SubscribeProgress(fn func(Progress)) error {
	return f.bus.Subscribe(TopicProgress, fn)
}

func (f *Fabric) SubscribeStatus(fn func(StatusChange)) error {
	return f.bus.Subscribe(TopicStatus, fn)
}

func (f *Fabric) SubscribeCompleted(fn func(Completed)) error {
	return f.bus.Subscribe(TopicCompleted, fn)
}

func (f *Fabric) SubscribeFailed(fn func(Failed)) error {
	return f.bus.Subscribe(TopicFailed, fn)
}

func (f *Fabric) SubscribeQueueStatus(fn func(QueueStatus)) error {
	return f.bus.Subscribe(TopicQueueStatus, fn)
}
