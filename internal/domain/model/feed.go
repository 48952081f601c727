package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"snipr-audio/internal/domain"

	"github.com/google/uuid"
)

const AudioMIMEType = "audio/mpeg"

// FeedEntry is one published episode. Entries are immutable once appended.
type FeedEntry struct {
	GUID          string    `json:"guid"`
	OwnerID       string    `json:"ownerId"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	AudioURL      string    `json:"audioUrl"`
	LengthBytes   int64     `json:"length"`
	DurationLabel string    `json:"duration"`
	PublishedAt   time.Time `json:"pubDate"`
	SourceLink    string    `json:"link,omitempty"`
	ImageURL      string    `json:"imageUrl,omitempty"`
	Author        string    `json:"author,omitempty"`
	Explicit      bool      `json:"explicit"`
}

// Validate mirrors the required-field check of the episode append endpoint.
func (e *FeedEntry) Validate() error {
	var missing []string
	if strings.TrimSpace(e.OwnerID) == "" {
		missing = append(missing, "ownerId")
	}
	if strings.TrimSpace(e.GUID) == "" {
		missing = append(missing, "guid")
	}
	if strings.TrimSpace(e.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(e.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(e.AudioURL) == "" {
		missing = append(missing, "audioUrl")
	}
	if e.LengthBytes <= 0 {
		missing = append(missing, "length")
	}
	if strings.TrimSpace(e.DurationLabel) == "" {
		missing = append(missing, "duration")
	}
	if len(missing) > 0 {
		return domain.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// NewFeedEntryFromJob builds the entry published for a completed job.
// The job id doubles as the entry guid so a job can only ever publish once.
func NewFeedEntryFromJob(job *ConversionJob, publishedAt time.Time) (*FeedEntry, error) {
	if job == nil || job.Status != JobStatusCompleted {
		return nil, domain.ErrInvalidArgument
	}
	description := job.Summary
	if strings.TrimSpace(description) == "" {
		description = job.Title
	}
	e := &FeedEntry{
		GUID:          job.ID,
		OwnerID:       job.OwnerID,
		Title:         job.Title,
		Description:   description,
		AudioURL:      job.AudioURL,
		LengthBytes:   job.AudioBytes,
		DurationLabel: FormatDuration(job.DurationSeconds),
		PublishedAt:   publishedAt.UTC(),
		SourceLink:    job.Source.URL,
	}
	return e, e.Validate()
}

// FormatDuration renders seconds as HH:MM:SS.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// UserFeed is the per-owner podcast feed. FeedID is the capability part of
// the public feed url.
type UserFeed struct {
	OwnerID     string      `json:"ownerId"`
	FeedID      string      `json:"feedId"`
	DisplayName string      `json:"displayName"`
	Email       string      `json:"email"`
	ArtworkURL  string      `json:"artworkUrl,omitempty"`
	Entries     []FeedEntry `json:"entries,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

func NewUserFeed(ownerID, displayName, email, artworkURL string) (*UserFeed, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.Validationf("owner id is required")
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = "Listener"
	}
	now := time.Now().UTC()
	return &UserFeed{
		OwnerID:     ownerID,
		FeedID:      NewFeedID(),
		DisplayName: strings.TrimSpace(displayName),
		Email:       strings.TrimSpace(email),
		ArtworkURL:  strings.TrimSpace(artworkURL),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// NewFeedID returns an unguessable feed identifier.
func NewFeedID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// MatchesFeedID reports whether id unlocks this feed.
func (f *UserFeed) MatchesFeedID(id string) bool {
	return f != nil && f.FeedID != "" && f.FeedID == id
}

// SortedEntries returns a copy of the entries, newest first. Ties keep guid
// order so the output is deterministic.
func (f *UserFeed) SortedEntries() []FeedEntry {
	out := make([]FeedEntry, len(f.Entries))
	copy(out, f.Entries)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].GUID < out[j].GUID
	})
	return out
}
