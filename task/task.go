package task

import (
	"time"
)

// Kind selects which workflow a job belongs to. Each kind has its own
// controller and at most one live poll loop.
type Kind string

const (
	KindMedia Kind = "media"
	KindRemix Kind = "remix"
)

// ParseKind maps an API path segment to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindMedia, KindRemix:
		return Kind(s), true
	}
	return "", false
}

type Status string

const (
	StatusIdle       Status = "idle"
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job is a snapshot of one backend job as seen by its controller.
type Job struct {
	Kind        Kind      `json:"kind"`
	ID          string    `json:"id,omitempty"`
	Status      Status    `json:"status"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	ServerPath  string    `json:"serverPath,omitempty"`
	Error       string    `json:"error,omitempty"`
	Polls       int       `json:"polls"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// Messages are the user-facing texts of one job kind.
type Messages struct {
	StartFailed  string
	NotFound     string
	StatusFailed string
	JobFailed    string
	TimedOut     string
}

var (
	MediaMessages = Messages{
		StartFailed:  "Failed to start job.",
		NotFound:     "Job not found. Please try again.",
		StatusFailed: "Failed to get job status from server.",
		JobFailed:    "Job failed.",
		TimedOut:     "Job did not finish in time.",
	}
	RemixMessages = Messages{
		StartFailed:  "Failed to start remix job.",
		NotFound:     "Remix job not found. Please try again.",
		StatusFailed: "Failed to get remix job status.",
		JobFailed:    "Remix job failed.",
		TimedOut:     "Remix job did not finish in time.",
	}
)

// MessagesFor returns the texts used for kind.
func MessagesFor(kind Kind) Messages {
	if kind == KindRemix {
		return RemixMessages
	}
	return MediaMessages
}
