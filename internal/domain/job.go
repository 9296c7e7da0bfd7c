package domain

import "time"

// Style enumerates the catalog scene styles a pack can be rendered in.
type Style string

const (
	StyleMarble      Style = "marble"
	StyleMinimalWood Style = "minimal_wood"
	StyleLoft        Style = "loft"
)

// Styles lists every supported style.
var Styles = []Style{StyleMarble, StyleMinimalWood, StyleLoft}

// ValidStyle reports whether s names a supported style.
func ValidStyle(s string) bool {
	for _, style := range Styles {
		if string(style) == s {
			return true
		}
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// PackSize is the number of variants a completed pack contains.
const PackSize = 6

// Job is the unit of orchestrated work: one uploaded product photo turned
// into a pack of styled catalog variants plus a downloadable archive.
//
// Images holds storage locators, append-only during generation; the final
// write orders them by variant slot. ZipURL is set only on the transition to
// done. Owner is the resolved identity that created the job and is empty only
// on legacy records.
type Job struct {
	ID          string    `json:"id"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Style       Style     `json:"style"`
	Upscale     bool      `json:"upscale"`
	OriginalURL string    `json:"originalUrl"`
	Images      []string  `json:"images"`
	ZipURL      string    `json:"zipUrl,omitempty"`
	Error       string    `json:"error,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Terminal reports whether the job reached a terminal state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusError
}

// Cancellable reports whether the job may still be cancelled.
func (j *Job) Cancellable() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusRunning
}
