package client

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/autobrr/go-rtorrent"
	"github.com/autobrr/go-rtorrent/xmlrpc"
	"github.com/sirupsen/logrus"

	"github.com/seedgate/seedgate/pkg/logger"
	"github.com/seedgate/seedgate/pkg/torrent"
)

/* Struct */

type RTorrent struct {
	Settings `koanf:"-"`

	Url      *string
	User     string
	Password string

	// internal
	log        *logrus.Entry
	clientType string
	client     *rtorrent.Client
	rpc        rtorrentRPC
}

// rtorrentRPC is the raw XML-RPC surface used for multicalls and the erase hook.
type rtorrentRPC interface {
	Call(ctx context.Context, method string, args ...interface{}) (interface{}, error)
}

// d.multicall2 columns, in rtorrentFields order
const (
	rtHash = iota
	rtName
	rtLabels
	rtStarted
	rtFinished
	rtSize
	rtCompleted
	rtUploaded
	rtDownRate
	rtUpRate
	rtMessage
	rtState
	rtActive
)

var rtorrentFields = []interface{}{
	"d.hash=",
	"d.name=",
	"d.custom1=",
	"d.timestamp.started=",
	"d.timestamp.finished=",
	"d.size_bytes=",
	"d.completed_bytes=",
	"d.up.total=",
	"d.down.rate=",
	"d.up.rate=",
	"d.message=",
	"d.state=",
	"d.is_active=",
}

const (
	rtorrentView          = "main"
	rtorrentErasedEvent   = "event.download.erased"
	rtorrentEraseHook     = "seedgate_delete_erased"
	rtorrentEraseCommand  = "execute=rm,-rf,--,$d.base_path="
	rtorrentTrackerPrefix = "Tracker: "
)

/* Initializer */

func NewRTorrent(settings Settings, raw map[string]interface{}) (Interface, error) {
	tc := RTorrent{
		Settings:   settings,
		log:        logger.GetLogger(settings.ClientName),
		clientType: "rTorrent",
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
	tc.client = rtorrent.NewClient(rtorrent.Config{
		Addr:          *tc.Url,
		TLSSkipVerify: true,
		BasicUser:     tc.User,
		BasicPass:     tc.Password,
		Log:           log.New(tc.log.WriterLevel(logrus.TraceLevel), "", 0),
	})

	tc.rpc = xmlrpc.NewClient(xmlrpc.Config{
		Addr:          *tc.Url,
		TLSSkipVerify: true,
		BasicUser:     tc.User,
		BasicPass:     tc.Password,
	})

	return &tc, nil
}

/* Interface */

func (c *RTorrent) Type() string {
	return c.clientType
}

func (c *RTorrent) Connect(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// rtorrent is stateless over XML-RPC, a name lookup proves the endpoint answers
	name, err := c.client.Name(ctx)
	if err != nil {
		return fmt.Errorf("login: %w: %w", ErrBackendUnavailable, err)
	}

	c.log.Debugf("Session name: %v", name)
	return nil
}

func (c *RTorrent) GetTorrents(ctx context.Context) ([]torrent.Torrent, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// retrieve torrents from client
	c.log.Tracef("Retrieving torrents...")
	args := append([]interface{}{"", rtorrentView}, rtorrentFields...)
	res, err := c.rpc.Call(ctx, "d.multicall2", args...)
	if err != nil {
		return nil, fmt.Errorf("get torrents: %w: %w", ErrBackendUnavailable, err)
	}

	rows, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("get torrents: %w: unexpected multicall result %T", ErrBackendUnavailable, res)
	}
	c.log.Tracef("Retrieved %d torrents", len(rows))

	// build torrent list
	torrents := make([]torrent.Torrent, 0, len(rows))
	for _, r := range rows {
		row, ok := r.([]interface{})
		if !ok || len(row) != len(rtorrentFields) {
			return nil, fmt.Errorf("get torrents: %w: unexpected multicall row %v", ErrBackendUnavailable, r)
		}

		t, err := rtorrentTorrent(row)
		if err != nil {
			return nil, fmt.Errorf("get torrents: %w: %w", ErrBackendUnavailable, err)
		}
		torrents = append(torrents, t)
	}

	sort.Slice(torrents, func(i, j int) bool {
		return torrents[i].Name < torrents[j].Name
	})

	return torrents, nil
}

func (c *RTorrent) RemoveTorrent(ctx context.Context, t *torrent.Torrent) (bool, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	// d.erase faults on unknown hashes, check presence first
	res, err := c.rpc.Call(ctx, "download_list", "", rtorrentView)
	if err != nil {
		return false, fmt.Errorf("lookup torrent: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
	} else if !rtorrentHasHash(res, t.Hash) {
		return false, nil
	}

	// erasing only drops the session entry, the hook removes the data
	if c.DeleteData {
		if _, err := c.rpc.Call(ctx, "method.set_key", "", rtorrentErasedEvent, rtorrentEraseHook, rtorrentEraseCommand); err != nil {
			return false, fmt.Errorf("hook erase event: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
		}

		defer func() {
			if _, err := c.rpc.Call(ctx, "method.set_key", "", rtorrentErasedEvent, rtorrentEraseHook); err != nil {
				c.log.WithError(err).Warn("Failed unhooking erase event")
			}
		}()
	}

	// remove
	if _, err := c.rpc.Call(ctx, "d.erase", t.Hash); err != nil {
		return false, fmt.Errorf("erase torrent: %v: %w: %w", t.Hash, ErrBackendUnavailable, err)
	}

	return true, nil
}

/* Conversion */

func rtorrentTorrent(row []interface{}) (torrent.Torrent, error) {
	var ints [rtActive + 1]int64
	for _, i := range []int{rtStarted, rtFinished, rtSize, rtCompleted, rtUploaded, rtDownRate, rtUpRate, rtState, rtActive} {
		v, err := rtorrentInt(row[i])
		if err != nil {
			return torrent.Torrent{}, fmt.Errorf("field %v: %w", rtorrentFields[i], err)
		}
		ints[i] = v
	}

	message := rtorrentString(row[rtMessage])
	trackerError := rtorrentTrackerError(message)

	startedAt := time.Unix(ints[rtStarted], 0)
	var finishedAt *time.Time
	if ints[rtFinished] > 0 {
		finished := time.Unix(ints[rtFinished], 0)
		if finished.Before(startedAt) {
			finished = startedAt
		}
		finishedAt = &finished
	}

	return torrent.Torrent{
		Hash:            rtorrentString(row[rtHash]),
		Name:            rtorrentString(row[rtName]),
		Labels:          rtorrentLabels(rtorrentString(row[rtLabels])),
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		State:           rtorrentState(ints[rtState], ints[rtActive], trackerError),
		SizeBytes:       nonNegative(ints[rtSize]),
		DownloadedBytes: nonNegative(ints[rtCompleted]),
		UploadedBytes:   nonNegative(ints[rtUploaded]),
		DownRateBps:     nonNegative(ints[rtDownRate]) * 8,
		UpRateBps:       nonNegative(ints[rtUpRate]) * 8,
		TrackerError:    trackerError,
	}, nil
}

// rtorrentLabels splits the url escaped, comma separated label list ruTorrent keeps in d.custom1.
func rtorrentLabels(custom1 string) []string {
	if custom1 == "" {
		return nil
	}

	if unescaped, err := url.PathUnescape(custom1); err == nil {
		custom1 = unescaped
	}

	var labels []string
	for _, l := range strings.Split(custom1, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

func rtorrentTrackerError(message string) string {
	if !strings.HasPrefix(message, rtorrentTrackerPrefix) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(message, rtorrentTrackerPrefix))
}

func rtorrentState(state int64, active int64, trackerError string) torrent.State {
	switch {
	case trackerError != "":
		return torrent.StateError
	case state == 0:
		return torrent.StateStopped
	case active == 0:
		return torrent.StatePaused
	default:
		return torrent.StateOK
	}
}

func rtorrentHasHash(res interface{}, hash string) bool {
	hashes, ok := res.([]interface{})
	if !ok {
		return false
	}

	for _, h := range hashes {
		if strings.EqualFold(rtorrentString(h), hash) {
			return true
		}
	}
	return false
}

func rtorrentString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// rtorrentInt accepts the integer shapes XML-RPC decoders produce for i4, i8 and numeric strings.
func rtorrentInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected value %v (%T)", v, v)
	}
}
