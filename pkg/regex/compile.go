package regex

import (
	"fmt"

	"github.com/dlclark/regexp2"
)

func Compile(pattern string) (*Pattern, error) {
	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}

	return &Pattern{
		Expression: re,
	}, nil
}

func CompileAll(patterns []string) ([]*Pattern, error) {
	compiled := make([]*Pattern, 0, len(patterns))
	for _, p := range patterns {
		c, err := Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		compiled = append(compiled, c)
	}
	return compiled, nil
}

func ValidatePatterns(patterns []string) error {
	_, err := CompileAll(patterns)
	return err
}
