package policy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/seedgate/seedgate/pkg/torrent"
)

var (
	ErrUnknownRequirement   = errors.New("unknown requirement")
	ErrMalformedRequirement = errors.New("malformed requirement")
)

type RequirementKind int

const (
	KindMinSeedRatio RequirementKind = iota + 1
	KindMinSeedHours
)

func (k RequirementKind) String() string {
	switch k {
	case KindMinSeedRatio:
		return "min_seed_ratio"
	case KindMinSeedHours:
		return "min_seed_hours"
	default:
		return "unknown"
	}
}

func ParseRequirementKind(name string) (RequirementKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "min_seed_ratio":
		return KindMinSeedRatio, nil
	case "min_seed_hours":
		return KindMinSeedHours, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownRequirement, name)
	}
}

type Requirement struct {
	Kind  RequirementKind
	Value float64
}

// RequirementSet holds requirements that must all hold for the set to be met.
type RequirementSet []Requirement

// ParseRequirementSets converts the raw requirements config, a list of name to threshold maps.
func ParseRequirementSets(raw []map[string]interface{}) ([]RequirementSet, error) {
	sets := make([]RequirementSet, 0, len(raw))
	for i, rawSet := range raw {
		// sorted for stable error messages
		names := make([]string, 0, len(rawSet))
		for name := range rawSet {
			names = append(names, name)
		}
		sort.Strings(names)

		set := make(RequirementSet, 0, len(rawSet))
		for _, name := range names {
			kind, err := ParseRequirementKind(name)
			if err != nil {
				return nil, fmt.Errorf("requirement set %d: %w", i, err)
			}

			value, err := requirementValue(rawSet[name])
			if err != nil {
				return nil, fmt.Errorf("requirement set %d: %s: %w", i, name, err)
			}

			set = append(set, Requirement{Kind: kind, Value: value})
		}

		sets = append(sets, set)
	}

	return sets, nil
}

func requirementValue(v interface{}) (float64, error) {
	var value float64

	switch n := v.(type) {
	case int:
		value = float64(n)
	case int64:
		value = float64(n)
	case uint64:
		value = float64(n)
	case float32:
		value = float64(n)
	case float64:
		value = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrMalformedRequirement, n)
		}
		value = parsed
	default:
		return 0, fmt.Errorf("%w: unsupported value %v (%T)", ErrMalformedRequirement, v, v)
	}

	if value < 0 {
		return 0, fmt.Errorf("%w: %v is negative", ErrMalformedRequirement, value)
	}

	return value, nil
}

func (t *Tracker) evaluate(tor *torrent.Torrent, req Requirement) bool {
	switch req.Kind {
	case KindMinSeedRatio:
		return tor.Ratio() >= req.Value+t.cfg.RatioBuffer
	case KindMinSeedHours:
		if tor.FinishedAt == nil {
			return false
		}
		return tor.SeedingHours(t.now()) >= req.Value+t.cfg.SeedBufferHours
	default:
		return false
	}
}

func (s RequirementSet) String() string {
	parts := make([]string, 0, len(s))
	for _, r := range s {
		parts = append(parts, fmt.Sprintf("%s=%v", r.Kind, r.Value))
	}
	return strings.Join(parts, " & ")
}

