package extraction

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
)

// Strategy is a named fallback chain of providers plus an acceptance threshold.
type Strategy struct {
	Name                string        `json:"name"`
	ConfidenceThreshold float64       `json:"confidenceThreshold"`
	AttemptTimeout      time.Duration `json:"attemptTimeout"`
	Formats             []string      `json:"formats,omitempty"`
	Providers           []string      `json:"providers"`
}

// Strategies is the closed set of configured strategies. It is immutable after load.
type Strategies struct {
	defaultName string
	byName      map[string]Strategy
	names       []string
	pricing     map[string]Price
}

// NewStrategies builds a set programmatically; used by tests and tools.
func NewStrategies(defaultName string, list []Strategy, pricing map[string]Price) *Strategies {
	s := &Strategies{
		defaultName: defaultName,
		byName:      make(map[string]Strategy, len(list)),
		pricing:     pricing,
	}
	if s.pricing == nil {
		s.pricing = map[string]Price{}
	}
	for _, st := range list {
		if st.AttemptTimeout <= 0 {
			st.AttemptTimeout = DefaultAttemptTimeout
		}
		s.byName[st.Name] = st
		s.names = append(s.names, st.Name)
	}
	slices.Sort(s.names)
	return s
}

// Resolve picks a strategy: an explicit name wins, otherwise the first strategy
// (by name) that declares the expected format, otherwise the default.
func (s *Strategies) Resolve(name, expectedFormat string) (Strategy, error) {
	if name = strings.TrimSpace(name); name != "" {
		st, ok := s.byName[name]
		if !ok {
			return Strategy{}, common.Validation("unknown strategy: " + name)
		}
		return st, nil
	}
	if f := strings.ToUpper(strings.TrimSpace(expectedFormat)); f != "" {
		for _, n := range s.names {
			if slices.Contains(s.byName[n].Formats, f) {
				return s.byName[n], nil
			}
		}
	}
	st, ok := s.byName[s.defaultName]
	if !ok {
		return Strategy{}, common.NewAppError(common.CodeConfig, "no default strategy configured", nil)
	}
	return st, nil
}

// Names returns strategy names in sorted order.
func (s *Strategies) Names() []string { return slices.Clone(s.names) }

// Price returns the configured price for provider, or a zero price.
func (s *Strategies) Price(provider string) Price {
	return s.pricing[provider]
}

// Validate checks every chain against the registry.
func (s *Strategies) Validate(reg *Registry) error {
	if len(s.byName) == 0 {
		return eris.New("extraction: no strategies configured")
	}
	if _, ok := s.byName[s.defaultName]; !ok {
		return eris.Errorf("extraction: default strategy %q is not defined", s.defaultName)
	}
	for _, n := range s.names {
		st := s.byName[n]
		if len(st.Providers) == 0 {
			return eris.Errorf("extraction: strategy %q has an empty provider chain", n)
		}
		if math.IsNaN(st.ConfidenceThreshold) || st.ConfidenceThreshold < 0 || st.ConfidenceThreshold > 1 {
			return eris.Errorf("extraction: strategy %q threshold %v outside [0,1]", n, st.ConfidenceThreshold)
		}
		if st.AttemptTimeout <= 0 {
			return eris.Errorf("extraction: strategy %q attempt_timeout must be positive, got %s", n, st.AttemptTimeout)
		}
		for _, p := range st.Providers {
			if _, ok := reg.Get(p); !ok {
				return eris.Errorf("extraction: strategy %q references unknown provider %q", n, p)
			}
		}
	}
	return nil
}
