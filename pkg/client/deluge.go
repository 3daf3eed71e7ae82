package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	delugeclient "github.com/autobrr/go-deluge"
	"github.com/sirupsen/logrus"

	"github.com/seedgate/seedgate/pkg/logger"
	"github.com/seedgate/seedgate/pkg/torrent"
)

/* Struct */

type Deluge struct {
	Settings `koanf:"-"`

	Host     *string
	Port     *uint
	Login    *string
	Password *string
	V2       bool

	// internal
	log        *logrus.Entry
	clientType string
	client     *delugeclient.LabelPlugin
	client1    *delugeclient.Client
	client2    *delugeclient.ClientV2
}

/* Initializer */

func NewDeluge(settings Settings, raw map[string]interface{}) (Interface, error) {
	tc := Deluge{
		Settings:   settings,
		log:        logger.GetLogger(settings.ClientName),
		clientType: "Deluge",
	}

	// load config
	if err := decode(raw, &tc); err != nil {
		return nil, err
	}

	// validate config
	if tc.Host == nil || tc.Port == nil || tc.Login == nil || tc.Password == nil {
		return nil, fmt.Errorf("validate config: host, port, login and password are required")
	}

	// init client
	settingsDeluge := delugeclient.Settings{
		Hostname: *tc.Host,
		Port:     *tc.Port,
		Login:    *tc.Login,
		Password: *tc.Password,
	}
	if tc.Timeout > 0 {
		settingsDeluge.ReadWriteTimeout = tc.Timeout
	}

	if tc.V2 {
		tc.client2 = delugeclient.NewV2(settingsDeluge)
	} else {
		tc.client1 = delugeclient.NewV1(settingsDeluge)
	}

	return &tc, nil
}

/* Interface */

func (c *Deluge) Type() string {
	return c.clientType
}

func (c *Deluge) Connect(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var err error

	// every connect dials a new session, drop the previous one
	c.disconnect()

	// connect to deluge daemon
	c.log.Tracef("Connecting to %s:%d", *c.Host, *c.Port)

	if c.V2 {
		err = c.client2.Connect(ctx)
	} else {
		err = c.client1.Connect(ctx)
	}

	if err != nil {
		c.disconnect()
		return fmt.Errorf("login: %w: %w", ErrBackendUnavailable, err)
	}

	// retrieve & set common label client
	var lc *delugeclient.LabelPlugin

	if c.V2 {
		lc, err = c.client2.LabelPlugin(ctx)
	} else {
		lc, err = c.client1.LabelPlugin(ctx)
	}

	if err != nil {
		c.disconnect()
		return fmt.Errorf("get label plugin: %w: %w", ErrBackendUnavailable, err)
	} else if lc == nil {
		c.disconnect()
		return fmt.Errorf("get label plugin: %w: label plugin is not enabled", ErrBackendUnavailable)
	}

	// retrieve daemon version
	daemonVersion, err := lc.DaemonVersion(ctx)
	if err != nil {
		c.disconnect()
		return fmt.Errorf("get daemon version: %w: %w", ErrBackendUnavailable, err)
	}
	c.log.Debugf("Daemon Version: %v", daemonVersion)

	c.client = lc
	return nil
}

func (c *Deluge) disconnect() {
	var err error
	if c.V2 {
		err = c.client2.Close()
	} else {
		err = c.client1.Close()
	}

	if err != nil && !errors.Is(err, delugeclient.ErrAlreadyClosed) {
		c.log.WithError(err).Trace("Failed closing connection")
	}

	c.client = nil
}

func (c *Deluge) GetTorrents(ctx context.Context) ([]torrent.Torrent, error) {
	if c.client == nil {
		return nil, fmt.Errorf("get torrents: %w: not connected", ErrBackendUnavailable)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// retrieve torrents from client
	c.log.Tracef("Retrieving torrents...")
	t, err := c.client.TorrentsStatus(ctx, delugeclient.StateUnspecified, nil)
	if err != nil {
		return nil, fmt.Errorf("get torrents: %w: %w", ErrBackendUnavailable, err)
	}
	c.log.Tracef("Retrieved %d torrents", len(t))

	// retrieve torrent labels
	labels, err := c.client.GetTorrentsLabels(delugeclient.StateUnspecified, nil)
	if err != nil {
		return nil, fmt.Errorf("get torrent labels: %w: %w", ErrBackendUnavailable, err)
	}
	c.log.Tracef("Retrieved labels for %d torrents", len(labels))

	// build torrent list
	now := time.Now()
	torrents := make([]torrent.Torrent, 0, len(t))
	for h, ts := range t {
		if ts == nil {
			continue
		}

		torrents = append(torrents, delugeTorrent(h, ts, labels[h], now))
	}

	sort.Slice(torrents, func(i, j int) bool {
		return torrents[i].Name < torrents[j].Name
	})

	return torrents, nil
}

func (c *Deluge) RemoveTorrent(ctx context.Context, t *torrent.Torrent) (bool, error) {
	if c.client == nil {
		return false, fmt.Errorf("remove torrent: %w: not connected", ErrBackendUnavailable)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// deluge raises on unknown hashes, check presence first
	existing, err := c.client.TorrentsStatus(ctx, delugeclient.StateUnspecified, []string{t.Hash})
	if err != nil {
		return false, fmt.Errorf("lookup torrent: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
	} else if _, ok := existing[t.Hash]; !ok {
		return false, nil
	}

	// announce so the tracker records the final upload
	if err := c.client.ForceReannounce(ctx, []string{t.Hash}); err != nil {
		return false, fmt.Errorf("re-announce torrent: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
	}

	// remove
	ok, err := c.client.RemoveTorrent(ctx, t.Hash, c.DeleteData)
	if err != nil {
		return false, fmt.Errorf("remove torrent: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
	}

	return ok, nil
}

/* Conversion */

func delugeTorrent(hash string, t *delugeclient.TorrentStatus, label string, now time.Time) torrent.Torrent {
	var labels []string
	if label != "" {
		labels = []string{label}
	}

	trackerError := delugeTrackerError(t.TrackerStatus)
	downloaded := nonNegative(t.TotalDone)

	// time_added is decoded as a float32 and loses sub-minute precision
	startedAt := time.Unix(int64(t.TimeAdded), 0)
	if t.TimeAdded <= 0 {
		startedAt = now.Add(-time.Duration(nonNegative(t.ActiveTime)) * time.Second)
	}

	// partial file selections report finished without being a seed
	var finishedAt *time.Time
	if t.IsFinished || t.IsSeed {
		var finished time.Time
		if t.CompletedTime > 0 {
			finished = time.Unix(t.CompletedTime, 0)
		} else {
			// v1 daemons have no completed_time
			finished = now.Add(-time.Duration(nonNegative(t.SeedingTime)) * time.Second)
		}
		if finished.Before(startedAt) {
			finished = startedAt
		}
		finishedAt = &finished
	}

	return torrent.Torrent{
		Hash:            hash,
		Name:            t.Name,
		Labels:          labels,
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		State:           delugeState(t.State, trackerError),
		SizeBytes:       nonNegative(t.TotalSize),
		DownloadedBytes: downloaded,
		// deluge only exposes the ratio, uploaded is derived from it
		UploadedBytes: int64(float64(t.Ratio) * float64(downloaded)),
		DownRateBps:   nonNegative(t.DownloadPayloadRate) * 8,
		UpRateBps:     nonNegative(t.UploadPayloadRate) * 8,
		TrackerHost:   t.TrackerHost,
		TrackerError:  trackerError,
	}
}

// delugeTrackerError extracts the tracker message from statuses such as "Error: unregistered torrent".
func delugeTrackerError(status string) string {
	const prefix = "error:"

	if !strings.HasPrefix(strings.ToLower(status), prefix) {
		return ""
	}

	return strings.TrimSpace(status[len(prefix):])
}

func delugeState(state string, trackerError string) torrent.State {
	if trackerError != "" {
		return torrent.StateError
	}

	switch strings.ToLower(state) {
	case "error":
		return torrent.StateError
	case "paused":
		return torrent.StatePaused
	default:
		return torrent.StateOK
	}
}
