package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scylladb/go-set/strset"
	"github.com/sirupsen/logrus"

	"github.com/seedgate/seedgate/pkg/client"
	"github.com/seedgate/seedgate/pkg/logger"
	"github.com/seedgate/seedgate/pkg/policy"
	"github.com/seedgate/seedgate/pkg/torrent"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Notifier receives the report of every sweep.
type Notifier interface {
	Name() string
	CanSend() bool
	Notify(ctx context.Context, report Report) error
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

type Manager struct {
	clients  map[string]client.Interface
	trackers []*policy.Tracker
	locks    map[string]*sync.Mutex
	notifier Notifier
	now      func() time.Time
	log      *logrus.Entry
}

func New(clients map[string]client.Interface, trackers []*policy.Tracker, opts ...Option) *Manager {
	m := &Manager{
		clients:  clients,
		trackers: append([]*policy.Tracker(nil), trackers...),
		locks:    make(map[string]*sync.Mutex, len(clients)),
		now:      time.Now,
		log:      logger.GetLogger("manager"),
	}

	for name := range clients {
		m.locks[name] = &sync.Mutex{}
	}

	sort.Slice(m.trackers, func(i, j int) bool {
		return m.trackers[i].Name() < m.trackers[j].Name()
	})

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Manager) ClientNames() []string {
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) TrackerNames() []string {
	names := make([]string, 0, len(m.trackers))
	for _, t := range m.trackers {
		names = append(names, t.Name())
	}
	return names
}

func (m *Manager) tracker(name string) *policy.Tracker {
	for _, t := range m.trackers {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// Manage lists every client and selects the satisfied or faulted torrents of each enabled tracker.
// Torrents are only removed when remove is true.
func (m *Manager) Manage(ctx context.Context, remove bool) (Report, error) {
	report := Report{
		StartedAt: m.now(),
		Delete:    remove,
	}

	if !remove {
		m.log.Warn("Dry-run enabled, torrents will not be removed")
	}

	for _, name := range m.ClientNames() {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("manage: %w", err)
		}

		report.Clients = append(report.Clients, m.manageClient(ctx, name, remove))
	}

	report.Duration = m.now().Sub(report.StartedAt)

	m.log.Infof("Sweep finished in %s: %d candidates, %d removed, %d failed",
		report.Duration.Truncate(time.Millisecond), report.Candidates(), report.Removed(), report.Failed())

	m.notify(ctx, report)
	return report, nil
}

func (m *Manager) manageClient(ctx context.Context, name string, remove bool) ClientReport {
	c := m.clients[name]
	cr := ClientReport{Name: name, Type: c.Type()}

	lock := m.locks[name]
	lock.Lock()
	defer lock.Unlock()

	torrents, err := m.listTorrents(ctx, c)
	if err != nil {
		if errors.Is(err, client.ErrBackendUnavailable) {
			m.log.WithError(err).Warnf("Client %s unavailable, skipping", name)
		} else {
			m.log.WithError(err).Errorf("Failed listing torrents of client %s, skipping", name)
		}
		cr.Error = err.Error()
		return cr
	}

	filtered := c.Filter(torrents)
	cr.Stats = torrent.Summarize(filtered)

	m.log.Infof("Client: %s (%d torrents, %.02f GiB, %.0f%% ratio, ↓%.02f Mbps, ↑%.02f Mbps)",
		name, cr.Stats.Count, gib(cr.Stats.SizeBytes), cr.Stats.Ratio()*100,
		mbps(cr.Stats.DownRateBps), mbps(cr.Stats.UpRateBps))

	// hashes removed during this pass, a torrent matching two trackers is removed once
	removed := strset.New()

	for _, t := range m.trackers {
		if !t.Enabled() {
			m.log.Debugf("Tracker %s disabled, skipping", t.Name())
			continue
		}

		cr.Trackers = append(cr.Trackers, m.manageTracker(ctx, c, t, filtered, removed, remove))
	}

	return cr
}

func (m *Manager) manageTracker(ctx context.Context, c client.Interface, t *policy.Tracker, torrents []torrent.Torrent,
	removed *strset.Set, remove bool) TrackerReport {
	scoped := t.FilterTorrents(c, torrents)
	tr := TrackerReport{
		Name:  t.Name(),
		Stats: torrent.Summarize(scoped),
	}

	var candidateSize int64
	for i := range scoped {
		tor := scoped[i]

		decision, err := t.Decide(c, &tor)
		if err != nil {
			m.log.WithError(err).Warnf("Failed evaluating %q, keeping", tor.Name)
			continue
		}

		if decision == policy.Keep {
			continue
		}

		tr.Candidates = append(tr.Candidates, Candidate{Torrent: tor, Decision: decision})
		candidateSize += tor.SizeBytes
	}

	m.log.Infof("Tracker: %s (%d/%d | %.02f/%.02f GiB to delete, %.0f%% ratio, ↓%.02f Mbps, ↑%.02f Mbps)",
		t.Name(), len(tr.Candidates), tr.Stats.Count, gib(candidateSize), gib(tr.Stats.SizeBytes),
		tr.Stats.Ratio()*100, mbps(tr.Stats.DownRateBps), mbps(tr.Stats.UpRateBps))

	for i := range tr.Candidates {
		cand := &tr.Candidates[i]
		m.log.Info(candidateLine(cand, t.Now()))

		if !remove {
			continue
		}

		if removed.Has(cand.Torrent.Hash) {
			m.log.Debugf("Already removed %q", cand.Torrent.Name)
			continue
		}

		ok, err := c.RemoveTorrent(ctx, &cand.Torrent)
		if err != nil {
			m.log.WithError(err).Errorf("Failed removing %q", cand.Torrent.Name)
			cand.Error = err.Error()
			continue
		}

		if !ok {
			m.log.Debugf("Torrent %q no longer present", cand.Torrent.Name)
			continue
		}

		removed.Add(cand.Torrent.Hash)
		cand.Removed = true
		m.log.Infof("Removed %q", cand.Torrent.Name)
	}

	return tr
}

func candidateLine(cand *Candidate, now time.Time) string {
	tor := &cand.Torrent
	line := fmt.Sprintf("%s: %s, %.02fGiB, %.02fh, %.0f%%, ↓%.02f Mbps, ↑%.02f Mbps",
		cand.Decision, tor.Name, gib(tor.SizeBytes), tor.SeedingHours(now), tor.Ratio()*100,
		mbps(tor.DownRateBps), mbps(tor.UpRateBps))

	if cand.Decision == policy.RemoveFaulted {
		line += fmt.Sprintf(", [%s]", tor.TrackerError)
	}
	return line
}

// Check reports whether a torrent of size bytes may be added to tracker through client.
func (m *Manager) Check(ctx context.Context, clientName string, trackerName string, size int64) (bool, string, error) {
	switch {
	case clientName == "":
		return false, "", fmt.Errorf("%w: client name is required", ErrInvalidArgument)
	case trackerName == "":
		return false, "", fmt.Errorf("%w: tracker name is required", ErrInvalidArgument)
	case size <= 0:
		return false, "", fmt.Errorf("%w: size must be a positive integer", ErrInvalidArgument)
	}

	c, ok := m.clients[clientName]
	if !ok {
		return false, "", fmt.Errorf("%w: unknown client: %s. Available clients: %s",
			ErrInvalidArgument, clientName, strings.Join(m.ClientNames(), ","))
	}

	t := m.tracker(trackerName)
	if t == nil {
		return false, "", fmt.Errorf("%w: unknown tracker: %s. Available trackers: %s",
			ErrInvalidArgument, trackerName, strings.Join(m.TrackerNames(), ","))
	}

	lock := m.locks[clientName]
	lock.Lock()
	defer lock.Unlock()

	torrents, err := m.listTorrents(ctx, c)
	if err != nil {
		return false, "", fmt.Errorf("check %s: %w", clientName, err)
	}

	accepted, reason := t.CanAccept(c, torrents, size)

	m.log.WithFields(logrus.Fields{
		"client":   clientName,
		"tracker":  trackerName,
		"size":     humanize.IBytes(uint64(size)),
		"accepted": accepted,
	}).Infof("Ingress check (client=%s, tracker=%s, size=%.02f GiB): %s", clientName, trackerName, gib(size), reason)

	return accepted, reason, nil
}

func (m *Manager) listTorrents(ctx context.Context, c client.Interface) ([]torrent.Torrent, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	torrents, err := c.GetTorrents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list torrents: %w", err)
	}

	return torrents, nil
}

func (m *Manager) notify(ctx context.Context, report Report) {
	if m.notifier == nil || !m.notifier.CanSend() {
		return
	}

	if err := m.notifier.Notify(ctx, report); err != nil {
		m.log.WithError(err).Errorf("Failed sending %s notification", m.notifier.Name())
	}
}

func gib(bytes int64) float64 {
	return float64(bytes) / humanize.GiByte
}

func mbps(bps int64) float64 {
	return float64(bps) / 1e6
}
