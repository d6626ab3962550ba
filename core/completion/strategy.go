package completion

import (
	"fmt"
	"strings"

	"github.com/whr-sorting/simbridge/core/model"
)

// CorrelationStrategy decides whether a completion token refers to an order.
type CorrelationStrategy interface {
	Name() string
	Matches(token string, o model.Order) bool
}

// Substring matches when the order's short id occurs anywhere in the token.
type Substring struct{}

func (Substring) Name() string { return "substring" }

func (Substring) Matches(token string, o model.Order) bool {
	return strings.Contains(token, model.ShortID(o.ID))
}

// ExactSuffix matches only when the token is exactly the order's short id.
type ExactSuffix struct{}

func (ExactSuffix) Name() string { return "exact-suffix" }

func (ExactSuffix) Matches(token string, o model.Order) bool {
	return token == model.ShortID(o.ID)
}

// ParseStrategy returns the strategy registered under name. An empty name
// selects Substring.
func ParseStrategy(name string) (CorrelationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "substring":
		return Substring{}, nil
	case "exact-suffix", "exact_suffix", "exact":
		return ExactSuffix{}, nil
	}
	return nil, fmt.Errorf("unknown correlation strategy %q (known: substring, exact-suffix)", name)
}

// correlate returns every candidate matching token, in candidate order.
func correlate(s CorrelationStrategy, token string, candidates []model.Order) []model.Order {
	var out []model.Order
	for _, o := range candidates {
		if s.Matches(token, o) {
			out = append(out, o)
		}
	}
	return out
}
