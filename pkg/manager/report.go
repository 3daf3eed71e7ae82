package manager

import (
	"time"

	"github.com/seedgate/seedgate/pkg/policy"
	"github.com/seedgate/seedgate/pkg/torrent"
)

// Report summarises one management sweep.
type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Delete    bool
	Clients   []ClientReport
}

type ClientReport struct {
	Name     string
	Type     string
	Stats    torrent.Stats
	Error    string
	Trackers []TrackerReport
}

type TrackerReport struct {
	Name       string
	Stats      torrent.Stats
	Candidates []Candidate
}

// Candidate is a torrent selected for removal.
type Candidate struct {
	Torrent  torrent.Torrent
	Decision policy.Decision
	Removed  bool
	Error    string
}

func (r Report) Candidates() int {
	n := 0
	r.each(func(Candidate) { n++ })
	return n
}

func (r Report) Removed() int {
	n := 0
	r.each(func(c Candidate) {
		if c.Removed {
			n++
		}
	})
	return n
}

func (r Report) Failed() int {
	n := 0
	r.each(func(c Candidate) {
		if c.Error != "" {
			n++
		}
	})
	return n
}

// Unavailable returns the names of the clients that could not be reached.
func (r Report) Unavailable() []string {
	var names []string
	for _, c := range r.Clients {
		if c.Error != "" {
			names = append(names, c.Name)
		}
	}
	return names
}

func (r Report) each(fn func(Candidate)) {
	for _, c := range r.Clients {
		for _, t := range c.Trackers {
			for _, cand := range t.Candidates {
				fn(cand)
			}
		}
	}
}
