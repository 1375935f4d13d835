package extraction

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfidenceThreshold = 0.6
	DefaultAttemptTimeout      = 30 * time.Second
)

// FileConfig is the on-disk strategy configuration.
type FileConfig struct {
	DefaultStrategy string                    `yaml:"default_strategy"`
	Defaults        StrategyConfig            `yaml:"defaults"`
	Strategies      map[string]StrategyConfig `yaml:"strategies"`
	Pricing         map[string]PriceConfig    `yaml:"pricing"`
}

// StrategyConfig configures one named fallback chain.
type StrategyConfig struct {
	ConfidenceThreshold *float64 `yaml:"confidence_threshold,omitempty"`
	AttemptTimeout      string   `yaml:"attempt_timeout,omitempty"` // Go duration, e.g. "20s"
	Formats             []string `yaml:"formats,omitempty"`
	Providers           []string `yaml:"providers"`
}

// PriceConfig holds USD prices per million tokens plus a flat per-call fee.
type PriceConfig struct {
	Input   string `yaml:"input"`
	Output  string `yaml:"output"`
	PerCall string `yaml:"per_call"`
}

// LoadStrategies reads strategy config from a YAML file.
func LoadStrategies(path string) (*Strategies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "extraction: read config %s", path)
	}
	return ParseStrategies(data)
}

// ParseStrategies decodes YAML with a top-level "extraction" key and applies
// defaults to strategies that leave a value unset.
func ParseStrategies(data []byte) (*Strategies, error) {
	var wrapper struct {
		Extraction FileConfig `yaml:"extraction"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "extraction: parse config")
	}
	fc := wrapper.Extraction

	defThreshold := DefaultConfidenceThreshold
	if fc.Defaults.ConfidenceThreshold != nil {
		defThreshold = *fc.Defaults.ConfidenceThreshold
	}
	defTimeout := DefaultAttemptTimeout
	if fc.Defaults.AttemptTimeout != "" {
		d, err := time.ParseDuration(fc.Defaults.AttemptTimeout)
		if err != nil {
			return nil, eris.Wrap(err, "extraction: defaults.attempt_timeout")
		}
		defTimeout = d
	}

	s := &Strategies{
		defaultName: fc.DefaultStrategy,
		byName:      make(map[string]Strategy, len(fc.Strategies)),
		pricing:     make(map[string]Price, len(fc.Pricing)),
	}
	for name, sc := range fc.Strategies {
		st := Strategy{
			Name:                name,
			ConfidenceThreshold: defThreshold,
			AttemptTimeout:      defTimeout,
			Providers:           sc.Providers,
		}
		if sc.ConfidenceThreshold != nil {
			st.ConfidenceThreshold = *sc.ConfidenceThreshold
		}
		if sc.AttemptTimeout != "" {
			d, err := time.ParseDuration(sc.AttemptTimeout)
			if err != nil {
				return nil, eris.Wrapf(err, "extraction: strategy %s attempt_timeout", name)
			}
			st.AttemptTimeout = d
		}
		for _, f := range sc.Formats {
			st.Formats = append(st.Formats, strings.ToUpper(strings.TrimSpace(f)))
		}
		s.byName[name] = st
	}
	for provider, pc := range fc.Pricing {
		p, err := pc.parse()
		if err != nil {
			return nil, eris.Wrapf(err, "extraction: pricing for %s", provider)
		}
		s.pricing[provider] = p
	}

	if s.defaultName == "" && len(s.byName) == 1 {
		for name := range s.byName {
			s.defaultName = name
		}
	}
	s.names = make([]string, 0, len(s.byName))
	for name := range s.byName {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
	return s, nil
}

func (pc PriceConfig) parse() (Price, error) {
	var p Price
	var err error
	if p.Input, err = decimalOrZero(pc.Input); err != nil {
		return p, eris.Wrap(err, "input")
	}
	if p.Output, err = decimalOrZero(pc.Output); err != nil {
		return p, eris.Wrap(err, "output")
	}
	if p.PerCall, err = decimalOrZero(pc.PerCall); err != nil {
		return p, eris.Wrap(err, "per_call")
	}
	return p, nil
}

func decimalOrZero(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
