package torrent

import (
	"time"

	"github.com/scylladb/go-set/strset"
)

type State string

const (
	StateOK      State = "OK"
	StatePaused  State = "PAUSED"
	StateStopped State = "STOPPED"
	StateError   State = "ERROR"
)

// Torrent is a backend agnostic snapshot of a single torrent, rebuilt on every listing.
type Torrent struct {
	// torrent
	Hash       string     `json:"Hash"`
	Name       string     `json:"Name"`
	Labels     []string   `json:"Labels"`
	StartedAt  time.Time  `json:"StartedAt"`
	FinishedAt *time.Time `json:"FinishedAt,omitempty"`
	State      State      `json:"State"`

	// counters
	SizeBytes       int64 `json:"SizeBytes"`
	DownloadedBytes int64 `json:"DownloadedBytes"`
	UploadedBytes   int64 `json:"UploadedBytes"`

	// throughput in bits per second
	DownRateBps int64 `json:"DownRateBps"`
	UpRateBps   int64 `json:"UpRateBps"`

	// tracker
	TrackerHost  string `json:"TrackerHost,omitempty"`
	TrackerError string `json:"TrackerError,omitempty"`
}

func (t *Torrent) Ratio() float64 {
	if t.DownloadedBytes <= 0 {
		return 0
	}

	return float64(t.UploadedBytes) / float64(t.DownloadedBytes)
}

func (t *Torrent) Finished() bool {
	return t.FinishedAt != nil
}

// SeedingHours returns the hours elapsed since the download completed, 0 if it has not.
func (t *Torrent) SeedingHours(now time.Time) float64 {
	if t.FinishedAt == nil {
		return 0
	}

	return now.Sub(*t.FinishedAt).Hours()
}

func (t *Torrent) HasAllLabels(labels ...string) bool {
	if len(labels) == 0 {
		return true
	}

	return strset.New(t.Labels...).Has(labels...)
}

func (t *Torrent) HasLabel(label string) bool {
	return t.HasAllLabels(label)
}
