package client

import (
	"context"

	"github.com/seedgate/seedgate/pkg/torrent"
)

type Interface interface {
	Name() string
	Type() string
	Connect(ctx context.Context) error
	GetTorrents(ctx context.Context) ([]torrent.Torrent, error)
	// RemoveTorrent returns false without an error when the torrent is no longer present.
	RemoveTorrent(ctx context.Context, t *torrent.Torrent) (bool, error)

	Filter(torrents []torrent.Torrent) []torrent.Torrent
	IsSatisfied(t *torrent.Torrent) bool
	IsFaulted(t *torrent.Torrent) bool

	StorageCap() int64
	RequiredLabels() []string
	UpRateCap() int64
	DownRateCap() int64
}
