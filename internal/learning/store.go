package learning

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-intake/internal/entity"
)

const (
	initialConfidence = 0.7
	confidenceStep    = 0.1
	maxConfidence     = 1.0
)

// observation is one learning signal for a single pattern key.
type observation struct {
	key         entity.PatternKey
	example     entity.Example
	subCategory string
	at          time.Time
}

type patternEntry struct {
	mu sync.Mutex
	p  entity.LearnedPattern
}

// Store is the in-memory pattern index. Writes to one key serialize on that
// key's mutex; the map itself is guarded by an RWMutex.
type Store struct {
	mu       sync.RWMutex
	patterns map[string]*patternEntry
}

func NewStore() *Store {
	return &Store{patterns: make(map[string]*patternEntry)}
}

// observe creates the pattern with its first example, or reinforces it.
func (s *Store) observe(o observation) entity.LearnedPattern {
	k := o.key.String()

	s.mu.Lock()
	e, ok := s.patterns[k]
	if !ok {
		m := MatcherFor(o.key.Field, o.key.Value)
		e = &patternEntry{p: entity.LearnedPattern{
			Key:              o.key,
			MatcherKind:      m.Kind(),
			MatcherExpr:      m.Expr(),
			Confidence:       initialConfidence,
			Examples:         []entity.Example{o.example},
			SubCategory:      o.subCategory,
			CreatedAt:        o.at,
			LastReinforcedAt: o.at,
		}}
		s.patterns[k] = e
		out := clonePattern(e.p)
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	bump(&e.p, o.at)
	if !hasExample(e.p.Examples, o.example) {
		e.p.Examples = append(e.p.Examples, o.example)
	}
	if o.subCategory != "" {
		e.p.SubCategory = o.subCategory
	}
	return clonePattern(e.p)
}

// reinforce raises an existing pattern's confidence without adding an example.
func (s *Store) reinforce(key entity.PatternKey, at time.Time) (entity.LearnedPattern, bool) {
	s.mu.RLock()
	e, ok := s.patterns[key.String()]
	s.mu.RUnlock()
	if !ok {
		return entity.LearnedPattern{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	bump(&e.p, at)
	return clonePattern(e.p), true
}

// Get returns a copy of the pattern stored under key.
func (s *Store) Get(key entity.PatternKey) (entity.LearnedPattern, bool) {
	s.mu.RLock()
	e, ok := s.patterns[key.String()]
	s.mu.RUnlock()
	if !ok {
		return entity.LearnedPattern{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clonePattern(e.p), true
}

// Snapshot copies every pattern, sorted by key.
func (s *Store) Snapshot() []entity.LearnedPattern {
	s.mu.RLock()
	entries := make([]*patternEntry, 0, len(s.patterns))
	for _, e := range s.patterns {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]entity.LearnedPattern, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, clonePattern(e.p))
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

// load installs persisted patterns, skipping any without examples.
func (s *Store) load(patterns []entity.LearnedPattern) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range patterns {
		if len(p.Examples) == 0 || p.Key.Field == "" || p.Key.Value == "" {
			continue
		}
		p.Confidence = clampConfidence(p.Confidence)
		s.patterns[p.Key.String()] = &patternEntry{p: clonePattern(p)}
		n++
	}
	return n
}

func bump(p *entity.LearnedPattern, at time.Time) {
	p.Confidence = clampConfidence(p.Confidence + confidenceStep)
	p.Reinforcements++
	if at.After(p.LastReinforcedAt) {
		p.LastReinforcedAt = at
	}
}

// clampConfidence rounds to two places so repeated +0.1 steps stay exact.
func clampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	return math.Min(maxConfidence, math.Round(c*100)/100)
}

func clonePattern(p entity.LearnedPattern) entity.LearnedPattern {
	p.Examples = append([]entity.Example(nil), p.Examples...)
	return p
}

func hasExample(list []entity.Example, ex entity.Example) bool {
	k := exampleKey(ex)
	for _, e := range list {
		if exampleKey(e) == k {
			return true
		}
	}
	return false
}

// exampleKey is the normalized (source, description, amount) triple.
func exampleKey(e entity.Example) [3]string {
	return [3]string{
		strings.ToLower(strings.TrimSpace(e.SourceIdentity)),
		strings.ToLower(strings.Join(strings.Fields(e.Description), " ")),
		e.Amount.Round(2).StringFixed(2),
	}
}

func newExample(source, description string, amount decimal.Decimal) entity.Example {
	return entity.Example{
		SourceIdentity: strings.TrimSpace(source),
		Description:    strings.Join(strings.Fields(description), " "),
		Amount:         amount,
	}
}
