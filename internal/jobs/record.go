package jobs

import "time"

// State of a job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether no further updates are accepted.
func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

// Result of a succeeded job.
type Result struct {
	Prompt string `json:"prompt"`
	// Location is the artifact folder on disk.
	Location string `json:"location"`
	// ImagePath is relative to the gallery root, slash separated.
	ImagePath string        `json:"image_path"`
	Folder    string        `json:"folder"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Record is the observable state of a job. Values returned by the registry
// are copies.
type Record struct {
	ID         string    `json:"id"`
	State      State     `json:"state"`
	Progress   int       `json:"progress"`
	Stage      string    `json:"stage"`
	Request    Request   `json:"request"`
	Prompt     string    `json:"prompt"`
	Result     *Result   `json:"result,omitempty"`
	Error      *Error    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

func (r Record) clone() Record {
	if r.Result != nil {
		res := *r.Result
		r.Result = &res
	}
	if r.Error != nil {
		e := *r.Error
		r.Error = &e
	}
	return r
}
