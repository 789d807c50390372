package ingest

import (
	"encoding/json"
	"fmt"
	"os"
)

// Contributor is one identified upstream source of real-time data.
type Contributor struct {
	ID       string `json:"id"`
	Token    string `json:"token"`
	Coverage string `json:"coverage"`
	// FeedURL is polled when set; contributors without one only receive
	// feeds over HTTP POST.
	FeedURL string `json:"feed_url"`
	// IsNewComplete marks feeds that always list the complete trip, turning
	// every update into a full replacement.
	IsNewComplete bool `json:"is_new_complete"`
}

// LoadContributors reads the contributor registry from a JSON file.
func LoadContributors(path string) ([]Contributor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading contributors file: %w", err)
	}
	var contributors []Contributor
	if err := json.Unmarshal(data, &contributors); err != nil {
		return nil, fmt.Errorf("parsing contributors file: %w", err)
	}
	for _, c := range contributors {
		if c.ID == "" {
			return nil, fmt.Errorf("contributor with empty id in %s", path)
		}
	}
	return contributors, nil
}

// FindContributor returns the contributor with the given id, or nil.
func FindContributor(contributors []Contributor, id string) *Contributor {
	for i := range contributors {
		if contributors[i].ID == id {
			return &contributors[i]
		}
	}
	return nil
}
