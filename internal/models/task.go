package models

import "time"

// TaskType distinguishes the two transfer directions the pipeline drives.
type TaskType string

const (
	TaskTypeDownload TaskType = "download"
	TaskTypeUpload   TaskType = "upload"
)

// TaskStatus is the closed set of states a Task can occupy. Terminal states
// (Completed, Failed, Cancelled) never transition further.
type TaskStatus string

const (
	StatusQueued      TaskStatus = "queued"
	StatusDownloading TaskStatus = "downloading"
	StatusDownloaded  TaskStatus = "downloaded"
	StatusUploading   TaskStatus = "uploading"
	StatusCompleted   TaskStatus = "completed"
	StatusFailed      TaskStatus = "failed"
	StatusCancelled   TaskStatus = "cancelled"
)

// terminal holds the states a Task cannot leave once entered.
var terminal = map[TaskStatus]bool{
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// IsTerminal reports whether status is one of the pipeline's terminal states.
func IsTerminal(status TaskStatus) bool {
	return terminal[status]
}

// validTransitions enumerates the allowed status edges, including the
// sec-transfer dedup fast path (queued -> completed) alongside the normal
// download/upload progression.
var validTransitions = map[TaskStatus][]TaskStatus{
	StatusQueued:      {StatusDownloading, StatusCompleted, StatusFailed, StatusCancelled},
	StatusDownloading: {StatusDownloaded, StatusFailed, StatusCancelled},
	StatusDownloaded:  {StatusUploading, StatusFailed, StatusCancelled},
	StatusUploading:   {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to TaskStatus) bool {
	if IsTerminal(from) {
		return false
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is the persisted unit of work the pipeline drives end to end.
type Task struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	Status      TaskStatus `json:"status"`
	UserID      string     `json:"user_id"`
	ChatID      string     `json:"chat_id"`
	MessageID   string     `json:"message_id"`
	DriveID     string     `json:"drive_id"`
	RemotePath  string     `json:"remote_path"`
	LocalPath   string     `json:"local_path,omitempty"`
	FileName    string     `json:"file_name"`
	FileSize    int64      `json:"file_size"`
	GroupID     string     `json:"group_id,omitempty"`
	ErrorReason string     `json:"error_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClaimedBy   string     `json:"claimed_by,omitempty"`
}
