package expression

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"

	"github.com/seedgate/seedgate/pkg/torrent"
)

func CheckTorrentSingleMatch(t *torrent.Torrent, now time.Time, expressions []CompiledExpression) (bool, error) {
	match, _, err := CheckTorrentSingleMatchWithReason(t, now, expressions)
	return match, err
}

// CheckTorrentSingleMatchWithReason reports whether any expression matches, along with the first matching expression.
func CheckTorrentSingleMatchWithReason(t *torrent.Torrent, now time.Time, expressions []CompiledExpression) (bool, string, error) {
	env := &evalContext{Torrent: t, now: now}

	for _, expression := range expressions {
		result, err := expr.Run(expression.Program, env)
		if err != nil {
			return false, "", fmt.Errorf("check expression: %w", err)
		}

		expResult, ok := result.(bool)
		if !ok {
			return false, "", fmt.Errorf("type assert expression result: %q", expression.Text)
		}

		if expResult {
			return true, expression.Text, nil
		}
	}

	return false, "", nil
}
