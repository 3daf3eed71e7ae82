package client

import (
	"context"
	"errors"
	"time"

	"github.com/seedgate/seedgate/pkg/torrent"
)

var ErrBackendUnavailable = errors.New("backend unavailable")

const DefaultTimeout = 30 * time.Second

// Settings holds the backend independent limits of a client. Backends embed it.
type Settings struct {
	ClientName         string
	StorageCapBytes    int64
	Labels             []string
	UpRateCapBps       int64
	DownRateCapBps     int64
	UpRateThresholdBps int64
	DeleteData         bool
	Timeout            time.Duration
}

func (s Settings) Name() string {
	return s.ClientName
}

func (s Settings) StorageCap() int64 {
	return s.StorageCapBytes
}

func (s Settings) RequiredLabels() []string {
	return s.Labels
}

func (s Settings) UpRateCap() int64 {
	return s.UpRateCapBps
}

func (s Settings) DownRateCap() int64 {
	return s.DownRateCapBps
}

// Filter returns the torrents carrying every required label.
func (s Settings) Filter(torrents []torrent.Torrent) []torrent.Torrent {
	filtered := make([]torrent.Torrent, 0, len(torrents))
	for _, t := range torrents {
		if t.HasAllLabels(s.Labels...) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// IsSatisfied is false while the torrent uploads at or above the configured threshold.
func (s Settings) IsSatisfied(t *torrent.Torrent) bool {
	if s.UpRateThresholdBps > 0 {
		return t.UpRateBps < s.UpRateThresholdBps
	}
	return true
}

func (s Settings) IsFaulted(t *torrent.Torrent) bool {
	return t.TrackerError != ""
}

func (s Settings) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
