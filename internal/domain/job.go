package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Error codes persisted on failed jobs.
const (
	ErrorCodeEngine     = "ENGINE_ERROR"
	ErrorCodeConnection = "CONNECTION_ERROR"
	ErrorCodeInternal   = "INTERNAL_ERROR"
	ErrorCodeUnknown    = "UNKNOWN"
)

// ImageSlot names one of the two input images of a job.
type ImageSlot string

const (
	ImageSlotCharacter ImageSlot = "character"
	ImageSlotProduct   ImageSlot = "product"
)

// ParseImageSlot validates a free-form slot name.
func ParseImageSlot(v string) (ImageSlot, bool) {
	switch ImageSlot(v) {
	case ImageSlotCharacter:
		return ImageSlotCharacter, true
	case ImageSlotProduct:
		return ImageSlotProduct, true
	}
	return "", false
}

// Job is one user-submitted generation request and its lifecycle record.
type Job struct {
	ID                string
	UserID            string
	Status            JobStatus
	Instructions      string
	CharacterImage    string
	ProductImage      string
	OutputImage       string
	ErrorCode         string
	ErrorMessage      string
	EngineExecutionID string
	Attempts          int
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// Image returns the stored input image for slot.
func (j *Job) Image(slot ImageSlot) string {
	switch slot {
	case ImageSlotCharacter:
		return j.CharacterImage
	case ImageSlotProduct:
		return j.ProductImage
	}
	return ""
}

// NewJob carries the immutable inputs of a job at creation time.
type NewJob struct {
	UserID         string
	Instructions   string
	CharacterImage string
	ProductImage   string
}
