package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scylladb/go-set/strset"

	"github.com/seedgate/seedgate/pkg/expression"
	"github.com/seedgate/seedgate/pkg/regex"
	"github.com/seedgate/seedgate/pkg/torrent"
)

type SlotScope string

const (
	// SlotScopeScoped counts torrents carrying the tracker label and the client required labels.
	SlotScopeScoped SlotScope = "scoped"
	// SlotScopeLabel counts every torrent of the client carrying the tracker label.
	SlotScopeLabel SlotScope = "label"
)

// Client is the part of a client adapter the policy consults.
type Client interface {
	RequiredLabels() []string
	StorageCap() int64
	UpRateCap() int64
	DownRateCap() int64
	IsSatisfied(t *torrent.Torrent) bool
	IsFaulted(t *torrent.Torrent) bool
}

type Config struct {
	Enabled            bool
	Label              string
	RequirementSets    []RequirementSet
	StorageCap         int64
	UnsatisfiedCap     int
	DownloadSlots      int
	RatioBuffer        float64
	SeedBufferHours    float64
	ClearErrors        []string
	ClearErrorPatterns []string
	Ignore             []string
	SlotScope          SlotScope
}

type Decision int

const (
	Keep Decision = iota
	RemoveSatisfied
	RemoveFaulted
)

func (d Decision) String() string {
	switch d {
	case RemoveSatisfied:
		return "SAT"
	case RemoveFaulted:
		return "ERR"
	default:
		return "KEEP"
	}
}

type Option func(*Tracker)

// WithClock overrides the time source used for seed time requirements.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

type Tracker struct {
	name          string
	cfg           Config
	clearErrors   *strset.Set
	clearPatterns []*regex.Pattern
	exp           *expression.Expressions
	now           func() time.Time
}

func New(name string, cfg Config, opts ...Option) (*Tracker, error) {
	if strings.TrimSpace(cfg.Label) == "" {
		return nil, fmt.Errorf("tracker %s: label is required", name)
	}

	switch cfg.SlotScope {
	case "":
		cfg.SlotScope = SlotScopeScoped
	case SlotScopeScoped, SlotScopeLabel:
	default:
		return nil, fmt.Errorf("tracker %s: unknown slot scope: %s", name, cfg.SlotScope)
	}

	patterns, err := regex.CompileAll(cfg.ClearErrorPatterns)
	if err != nil {
		return nil, fmt.Errorf("tracker %s: clear error patterns: %w", name, err)
	}

	exp, err := expression.Compile(cfg.Ignore)
	if err != nil {
		return nil, fmt.Errorf("tracker %s: ignore expressions: %w", name, err)
	}

	t := &Tracker{
		name:          name,
		cfg:           cfg,
		clearErrors:   strset.New(cfg.ClearErrors...),
		clearPatterns: patterns,
		exp:           exp,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

func (t *Tracker) Name() string {
	return t.name
}

func (t *Tracker) Enabled() bool {
	return t.cfg.Enabled
}

func (t *Tracker) Label() string {
	return t.cfg.Label
}

func (t *Tracker) Now() time.Time {
	return t.now()
}

// FilterTorrents returns the torrents carrying the tracker label and every label the client requires.
func (t *Tracker) FilterTorrents(c Client, torrents []torrent.Torrent) []torrent.Torrent {
	labels := append([]string{t.cfg.Label}, c.RequiredLabels()...)

	filtered := make([]torrent.Torrent, 0, len(torrents))
	for _, tor := range torrents {
		if tor.HasAllLabels(labels...) {
			filtered = append(filtered, tor)
		}
	}
	return filtered
}

// IsSatisfied reports whether a finished torrent meets every requirement of at least one set.
func (t *Tracker) IsSatisfied(tor *torrent.Torrent) bool {
	if tor.FinishedAt == nil {
		return false
	}

	for _, set := range t.cfg.RequirementSets {
		met := true
		for _, req := range set {
			if !t.evaluate(tor, req) {
				met = false
				break
			}
		}

		if met {
			return true
		}
	}

	return false
}

// IsFaulted reports whether the client sees a tracker error that is allowed to trigger a removal.
func (t *Tracker) IsFaulted(c Client, tor *torrent.Torrent) bool {
	if !c.IsFaulted(tor) {
		return false
	}

	if t.clearErrors.Has(tor.TrackerError) {
		return true
	}

	match, err := regex.CheckAny(tor.TrackerError, t.clearPatterns)
	return err == nil && match
}

// IsIgnored reports whether an ignore expression matches, along with the matching expression.
func (t *Tracker) IsIgnored(tor *torrent.Torrent) (bool, string, error) {
	return expression.CheckTorrentSingleMatchWithReason(tor, t.now(), t.exp.Ignores)
}

// Decide returns whether a scoped torrent should be removed and why.
func (t *Tracker) Decide(c Client, tor *torrent.Torrent) (Decision, error) {
	ignored, _, err := t.IsIgnored(tor)
	if err != nil {
		return Keep, fmt.Errorf("check ignore: %v: %w", tor.Hash, err)
	} else if ignored {
		return Keep, nil
	}

	if t.IsFaulted(c, tor) {
		return RemoveFaulted, nil
	}

	if t.IsSatisfied(tor) && c.IsSatisfied(tor) {
		return RemoveSatisfied, nil
	}

	return Keep, nil
}

// CanAccept runs the admission checks in order and returns the reason of the first one failing.
// torrents is every torrent listed by the client, size the size of the torrent to add.
func (t *Tracker) CanAccept(c Client, torrents []torrent.Torrent, size int64) (bool, string) {
	// client storage
	if c.StorageCap() > 0 {
		sizeTotal := torrent.Summarize(torrents).SizeBytes + size
		if sizeTotal > c.StorageCap() {
			return false, fmt.Sprintf("Storage cap exceeded (client): %.02f/%.02f GiB.",
				float64(sizeTotal)/humanize.GiByte, float64(c.StorageCap())/humanize.GiByte)
		}
	}

	scoped := t.FilterTorrents(c, torrents)
	scopedStats := torrent.Summarize(scoped)

	// tracker storage
	if t.cfg.StorageCap > 0 {
		consumed := scopedStats.SizeBytes + size
		if consumed > t.cfg.StorageCap {
			return false, fmt.Sprintf("Storage cap exceeded (tracker): %.02f/%.02f GiB.",
				float64(consumed)/humanize.GiByte, float64(t.cfg.StorageCap)/humanize.GiByte)
		}
	}

	counted := scoped
	if t.cfg.SlotScope == SlotScopeLabel {
		counted = t.labelled(torrents)
	}

	// unsatisfied torrents
	if t.cfg.UnsatisfiedCap > 0 {
		unsatisfied := 0
		for i := range counted {
			if !t.IsSatisfied(&counted[i]) {
				unsatisfied++
			}
		}

		if unsatisfied >= t.cfg.UnsatisfiedCap {
			return false, fmt.Sprintf("Unsatisfied cap exceeded: %d/%d.", unsatisfied, t.cfg.UnsatisfiedCap)
		}
	}

	// download slots
	if t.cfg.DownloadSlots > 0 {
		downloading := 0
		for i := range counted {
			if counted[i].FinishedAt == nil {
				downloading++
			}
		}

		if downloading >= t.cfg.DownloadSlots {
			return false, fmt.Sprintf("Download slots exceeded: %d/%d.", downloading, t.cfg.DownloadSlots)
		}
	}

	// client rates
	if c.UpRateCap() > 0 && scopedStats.UpRateBps >= c.UpRateCap() {
		return false, fmt.Sprintf("Up rate cap exceeded: %.02f Mbps.", float64(scopedStats.UpRateBps)/1e6)
	}

	if c.DownRateCap() > 0 && scopedStats.DownRateBps >= c.DownRateCap() {
		return false, fmt.Sprintf("Down rate cap exceeded: %.02f Mbps.", float64(scopedStats.DownRateBps)/1e6)
	}

	return true, "OK"
}

func (t *Tracker) labelled(torrents []torrent.Torrent) []torrent.Torrent {
	labelled := make([]torrent.Torrent, 0, len(torrents))
	for _, tor := range torrents {
		if tor.HasLabel(t.cfg.Label) {
			labelled = append(labelled, tor)
		}
	}
	return labelled
}
