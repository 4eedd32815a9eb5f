// internal/interactor/locator.go
package interactor

import (
	"fmt"
	"regexp"
	"strings"
)

// Strategy names how a Locator finds its element.
type Strategy string

const (
	StrategyRole        Strategy = "role"
	StrategyText        Strategy = "text"
	StrategyID          Strategy = "id"
	StrategyCSS         Strategy = "css"
	StrategyLabel       Strategy = "label"
	StrategyPlaceholder Strategy = "placeholder"
	StrategyXPath       Strategy = "xpath"
)

var knownStrategies = map[Strategy]struct{}{
	StrategyRole:        {},
	StrategyText:        {},
	StrategyID:          {},
	StrategyCSS:         {},
	StrategyLabel:       {},
	StrategyPlaceholder: {},
	StrategyXPath:       {},
}

// Locator is one strategy for finding a UI element. An ordered []Locator is a
// candidate list for a single logical target; the first visible one wins.
type Locator struct {
	Strategy Strategy
	Value    string
	// Name is the accessible name filter for role locators.
	Name string
}

// roleExpr matches `button[name="Submit"]` and `button[name='Submit']`.
var roleExpr = regexp.MustCompile(`^([a-z]+)\s*\[\s*name\s*=\s*(?:"([^"]*)"|'([^']*)')\s*\]$`)

// ParseLocator parses the textual form "strategy=value". A string without a
// known strategy prefix is treated as a CSS selector.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("empty locator")
	}

	prefix, rest, found := strings.Cut(s, "=")
	strategy := Strategy(strings.ToLower(strings.TrimSpace(prefix)))
	if _, known := knownStrategies[strategy]; !found || !known {
		return Locator{Strategy: StrategyCSS, Value: s}, nil
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return Locator{}, fmt.Errorf("locator %q has an empty value", s)
	}

	if strategy == StrategyRole {
		if m := roleExpr.FindStringSubmatch(rest); m != nil {
			name := m[2]
			if name == "" {
				name = m[3]
			}
			return Locator{Strategy: StrategyRole, Value: m[1], Name: name}, nil
		}
		if strings.ContainsAny(rest, "[]") {
			return Locator{}, fmt.Errorf("malformed role locator %q", s)
		}
	}
	return Locator{Strategy: strategy, Value: unquote(rest)}, nil
}

// ParseLocators parses a candidate list, preserving order.
func ParseLocators(raw []string) ([]Locator, error) {
	out := make([]Locator, 0, len(raw))
	for i, s := range raw {
		loc, err := ParseLocator(s)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
		out = append(out, loc)
	}
	return out, nil
}

// MustParseLocators is ParseLocators for static candidate lists.
func MustParseLocators(raw ...string) []Locator {
	locs, err := ParseLocators(raw)
	if err != nil {
		panic(err)
	}
	return locs
}

func (l Locator) String() string {
	if l.Strategy == StrategyRole && l.Name != "" {
		return fmt.Sprintf("role=%s[name=%q]", l.Value, l.Name)
	}
	return string(l.Strategy) + "=" + l.Value
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
