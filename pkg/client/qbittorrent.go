package client

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	qbit "github.com/autobrr/go-qbittorrent"
	"github.com/bobesa/go-domain-util/domainutil"
	"github.com/sirupsen/logrus"

	"github.com/seedgate/seedgate/pkg/logger"
	"github.com/seedgate/seedgate/pkg/torrent"
)

/* Struct */

type QBittorrent struct {
	Settings `koanf:"-"`

	Url      *string
	User     string
	Password string

	// internal
	log        *logrus.Entry
	clientType string
	client     *qbit.Client
}

/* Initializer */

func NewQBittorrent(settings Settings, raw map[string]interface{}) (Interface, error) {
	tc := QBittorrent{
		Settings:   settings,
		log:        logger.GetLogger(settings.ClientName),
		clientType: "qBittorrent",
	}

	// load config
	if err := decode(raw, &tc); err != nil {
		return nil, err
	}

	// validate config
	if tc.Url == nil || *tc.Url == "" {
		return nil, fmt.Errorf("validate config: url is required")
	}

	// init client
	tc.client = qbit.NewClient(qbit.Config{
		Host:          *tc.Url,
		Username:      tc.User,
		Password:      tc.Password,
		TLSSkipVerify: true,
		BasicUser:     tc.User,
		BasicPass:     tc.Password,
		Log:           nil,
	})

	return &tc, nil
}

/* Interface */

func (c *QBittorrent) Type() string {
	return c.clientType
}

func (c *QBittorrent) Connect(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// login
	if err := c.client.LoginCtx(ctx); err != nil {
		return fmt.Errorf("login: %w: %w", ErrBackendUnavailable, err)
	}

	// retrieve api version
	apiVersion, err := c.client.GetWebAPIVersionCtx(ctx)
	if err != nil {
		return fmt.Errorf("get api version: %w: %w", ErrBackendUnavailable, err)
	}

	c.log.Debugf("API Version: %v", apiVersion)
	return nil
}

func (c *QBittorrent) GetTorrents(ctx context.Context) ([]torrent.Torrent, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// retrieve torrents from client
	c.log.Tracef("Retrieving torrents...")
	t, err := c.client.GetTorrentsCtx(ctx, qbit.TorrentFilterOptions{IncludeTrackers: true})
	if err != nil {
		return nil, fmt.Errorf("get torrents: %w: %w", ErrBackendUnavailable, err)
	}
	c.log.Tracef("Retrieved %d torrents", len(t))

	// build torrent list
	torrents := make([]torrent.Torrent, 0, len(t))
	for _, t := range t {
		trackers := t.Trackers

		// in qBittorrent v5.1+ we can use includeTrackers to populate trackers, but in older versions we need to fetch trackers per torrent
		if len(trackers) == 0 {
			ts, err := c.client.GetTorrentTrackersCtx(ctx, t.Hash)
			if err != nil {
				return nil, fmt.Errorf("get torrent trackers: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
			}
			trackers = ts
		}

		torrents = append(torrents, qbitTorrent(t, trackers))
	}

	sort.Slice(torrents, func(i, j int) bool {
		return torrents[i].Name < torrents[j].Name
	})

	return torrents, nil
}

func (c *QBittorrent) RemoveTorrent(ctx context.Context, t *torrent.Torrent) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// qBittorrent silently accepts deletes of unknown hashes
	existing, err := c.client.GetTorrentsCtx(ctx, qbit.TorrentFilterOptions{Hashes: []string{t.Hash}})
	if err != nil {
		return false, fmt.Errorf("lookup torrent: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
	} else if len(existing) == 0 {
		return false, nil
	}

	// announce so the tracker records the final upload
	if err := c.client.ReAnnounceTorrentsCtx(ctx, []string{t.Hash}); err != nil {
		return false, fmt.Errorf("re-announce torrent: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
	}

	// remove
	if err := c.client.DeleteTorrentsCtx(ctx, []string{t.Hash}, c.DeleteData); err != nil {
		return false, fmt.Errorf("delete torrent: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
	}

	return true, nil
}

/* Conversion */

func qbitTorrent(t qbit.Torrent, trackers []qbit.TorrentTracker) torrent.Torrent {
	var tags []string
	if t.Tags != "" {
		for _, tag := range strings.Split(t.Tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	trackerHost, trackerError := qbitTrackerDetails(trackers)

	startedAt := time.Unix(t.AddedOn, 0)
	var finishedAt *time.Time
	if t.CompletionOn > 0 {
		finished := time.Unix(t.CompletionOn, 0)
		if finished.Before(startedAt) {
			finished = startedAt
		}
		finishedAt = &finished
	}

	return torrent.Torrent{
		Hash:            t.Hash,
		Name:            t.Name,
		Labels:          tags,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		State:           qbitState(t.State, trackerError),
		SizeBytes:       nonNegative(t.Size),
		DownloadedBytes: nonNegative(t.Downloaded),
		UploadedBytes:   nonNegative(t.Uploaded),
		DownRateBps:     nonNegative(t.DlSpeed) * 8,
		UpRateBps:       nonNegative(t.UpSpeed) * 8,
		TrackerHost:     trackerHost,
		TrackerError:    trackerError,
	}
}

// qbitTrackerDetails returns the domain of the first real tracker and the message of the first tracker
// that was contacted but is not working.
func qbitTrackerDetails(trackers []qbit.TorrentTracker) (string, string) {
	trackerHost := ""
	trackerError := ""

	for _, tr := range trackers {
		// skip disabled trackers
		if strings.Contains(tr.Url, "[DHT]") || strings.Contains(tr.Url, "[LSD]") ||
			strings.Contains(tr.Url, "[PeX]") {
			continue
		}

		if trackerHost == "" {
			trackerHost = ParseTrackerDomain(tr.Url)
		}

		if trackerError == "" && tr.Status == qbit.TrackerStatusNotWorking && tr.Message != "" {
			trackerError = tr.Message
		}
	}

	return trackerHost, trackerError
}

func qbitState(state qbit.TorrentState, trackerError string) torrent.State {
	if trackerError != "" {
		return torrent.StateError
	}

	switch state {
	case qbit.TorrentStateError, qbit.TorrentStateMissingFiles:
		return torrent.StateError
	case qbit.TorrentStatePausedDl, qbit.TorrentStatePausedUp:
		return torrent.StatePaused
	case qbit.TorrentStateStoppedDl, qbit.TorrentStateStoppedUp:
		return torrent.StateStopped
	default:
		return torrent.StateOK
	}
}

func ParseTrackerDomain(trackerURL string) string {
	if trackerURL == "" {
		return ""
	}

	u, err := url.Parse(trackerURL)
	if err != nil {
		return ""
	}

	host := u.Hostname()
	if host == "" {
		return ""
	}

	if net.ParseIP(host) != nil {
		return host
	}

	if domain := domainutil.Domain(host); domain != "" {
		return domain
	}

	return host
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
