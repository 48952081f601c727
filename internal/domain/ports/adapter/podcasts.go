package adapter

import "context"

type PodcastEpisode struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PublishedAt string `json:"pubDate"`
	AudioURL    string `json:"audioUrl"`
	Duration    string `json:"duration"`
}

type Podcast struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
	ImageURL    string           `json:"imageUrl"`
	FeedURL     string           `json:"feedUrl"`
	Episodes    []PodcastEpisode `json:"episodes"`
}

// PodcastDirectory lists the configured external podcasts.
type PodcastDirectory interface {
	List(ctx context.Context) ([]Podcast, error)
}
