package model

import (
	"net/url"
	"strings"
	"time"

	"snipr-audio/internal/domain"

	"github.com/oklog/ulid/v2"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// InterruptedReason is recorded on jobs found in processing after a restart.
const InterruptedReason = "interrupted by shutdown before completion"

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourceRef points at the content to convert: either a URL or inline text.
type SourceRef struct {
	URL   string `json:"url,omitempty"`
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
}

func (s SourceRef) IsURL() bool { return s.URL != "" }

// Validate requires exactly one of URL or Text, and an absolute http(s) URL.
func (s SourceRef) Validate() error {
	hasURL := strings.TrimSpace(s.URL) != ""
	hasText := strings.TrimSpace(s.Text) != ""
	switch {
	case hasURL && hasText:
		return domain.Validationf("source must be either a url or text, not both")
	case !hasURL && !hasText:
		return domain.Validationf("source url or text is required")
	case hasURL:
		u, err := url.Parse(strings.TrimSpace(s.URL))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return domain.Validationf("source url must be an absolute http(s) url")
		}
	}
	return nil
}

// ConversionJob tracks one content-to-audio conversion through the pipeline.
type ConversionJob struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Source          SourceRef `json:"source"`
	Status          JobStatus `json:"status"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	AudioURL        string    `json:"audioUrl,omitempty"`
	AudioBytes      int64     `json:"audioBytes,omitempty"`
	DurationSeconds int       `json:"durationSeconds,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func NewConversionJob(ownerID string, src SourceRef) (*ConversionJob, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.Validationf("owner id is required")
	}
	src.URL = strings.TrimSpace(src.URL)
	src.Title = strings.TrimSpace(src.Title)
	if err := src.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &ConversionJob{
		ID:        ulid.Make().String(),
		OwnerID:   ownerID,
		Source:    src,
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (j *ConversionJob) transition(next JobStatus) error {
	if !j.Status.CanTransitionTo(next) {
		return domain.ErrInvalidTransition
	}
	j.Status = next
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Start moves a pending job to processing.
func (j *ConversionJob) Start() error {
	return j.transition(JobStatusProcessing)
}

// Complete records the published artifact. Both the url and a positive
// duration are required so a completed job is always playable.
func (j *ConversionJob) Complete(audioURL string, audioBytes int64, durationSeconds int) error {
	if strings.TrimSpace(audioURL) == "" || durationSeconds <= 0 {
		return domain.ErrInvalidArgument
	}
	if err := j.transition(JobStatusCompleted); err != nil {
		return err
	}
	j.AudioURL = audioURL
	j.AudioBytes = audioBytes
	j.DurationSeconds = durationSeconds
	j.Error = ""
	return nil
}

// Fail moves the job to failed. Result fields are cleared so a failed job
// never references audio.
func (j *ConversionJob) Fail(reason string) error {
	if err := j.transition(JobStatusFailed); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	j.Error = reason
	j.AudioURL = ""
	j.AudioBytes = 0
	j.DurationSeconds = 0
	return nil
}

func (j *ConversionJob) Touch() { j.UpdatedAt = time.Now().UTC() }

// CheckInvariants reports whether the terminal-state guarantees hold.
func (j *ConversionJob) CheckInvariants() error {
	switch j.Status {
	case JobStatusCompleted:
		if j.AudioURL == "" || j.DurationSeconds <= 0 || j.Error != "" {
			return domain.ErrInvalidArgument
		}
	case JobStatusFailed:
		if j.Error == "" || j.AudioURL != "" {
			return domain.ErrInvalidArgument
		}
	case JobStatusPending, JobStatusProcessing:
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}
