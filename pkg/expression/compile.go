package expression

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/dustin/go-humanize"
	"github.com/expr-lang/expr"

	"github.com/seedgate/seedgate/pkg/regex"
	"github.com/seedgate/seedgate/pkg/torrent"
)

var (
	// Matches: RegexMatch("pattern")
	regexFuncPattern = regexp2.MustCompile(`RegexMatch\("([^"\\]*(?:\\.[^"\\]*)*)"\)`, regexp2.None)
)

type evalContext struct {
	*torrent.Torrent
	now time.Time
}

func (e *evalContext) SeedingHours() float64 {
	if e.Torrent == nil {
		return 0
	}
	return e.Torrent.SeedingHours(e.now)
}

func (e *evalContext) SizeGiB() float64 {
	if e.Torrent == nil {
		return 0
	}
	return float64(e.Torrent.SizeBytes) / humanize.GiByte
}

func (e *evalContext) IsFaulted() bool {
	if e.Torrent == nil {
		return false
	}
	return e.Torrent.TrackerError != ""
}

func (e *evalContext) RegexMatch(pattern string) bool {
	if e.Torrent == nil {
		return false
	}

	compiled, err := regex.Compile(pattern)
	if err != nil {
		return false
	}

	match, err := regex.Check(e.Torrent.Name, compiled)
	if err != nil {
		return false
	}
	return match
}

func Compile(ignores []string) (*Expressions, error) {
	exprEnv := &evalContext{}
	exp := new(Expressions)

	// validate regex patterns before compiling
	for _, ignoreExpr := range ignores {
		if err := validatePatterns(ignoreExpr); err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %q: %w", ignoreExpr, err)
		}
	}

	// compile ignores
	for _, ignoreExpr := range ignores {
		program, err := expr.Compile(ignoreExpr, expr.Env(exprEnv), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile ignore expression: %q: %w", ignoreExpr, err)
		}

		exp.Ignores = append(exp.Ignores, CompiledExpression{
			Program: program,
			Text:    ignoreExpr,
		})
	}

	return exp, nil
}

func validatePatterns(text string) error {
	match, err := regexFuncPattern.FindStringMatch(text)
	if err != nil {
		return fmt.Errorf("invalid regex function: %w", err)
	}

	var patterns []string
	for match != nil {
		// group 1 contains the pattern
		if p := strings.TrimSpace(match.GroupByNumber(1).String()); p != "" {
			patterns = append(patterns, p)
		}

		match, err = regexFuncPattern.FindNextMatch(match)
		if err != nil {
			return fmt.Errorf("invalid regex function: %w", err)
		}
	}

	return regex.ValidatePatterns(patterns)
}
