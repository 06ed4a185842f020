package media

// Status is the lifecycle state of a download task.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transition can happen without an
// explicit retry or cancellation.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// CanTransition validates a state change against the task lifecycle:
// Pending -> Downloading -> {Completed, Error, Cancelled}, with
// Error/Cancelled -> Downloading re-entry on retry and Pending -> Cancelled
// for tasks cancelled while still queued.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusDownloading || to == StatusCancelled
	case StatusDownloading:
		return to == StatusCompleted || to == StatusError || to == StatusCancelled
	case StatusError, StatusCancelled:
		return to == StatusDownloading
	}
	return false
}
