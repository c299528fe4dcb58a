package policy

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// RuleSet is an ordered, concurrency-safe collection of rules keyed by ID.
//
// An ID may carry several variants that differ in provider/site scope: an
// unscoped base rule plus overrides for specific providers or sites. Lookups
// that know the record's scope go through Resolve.
type RuleSet struct {
	mu     sync.RWMutex
	rules  []*Rule
	byID   map[string][]*Rule
	scoped int
}

// NewRuleSet compiles and adds every rule in order.
func NewRuleSet(rules ...*Rule) (*RuleSet, error) {
	s := &RuleSet{byID: make(map[string][]*Rule)}
	for _, r := range rules {
		if err := s.Add(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MustRuleSet is NewRuleSet for rule tables built in code.
func MustRuleSet(rules ...*Rule) *RuleSet {
	s, err := NewRuleSet(rules...)
	if err != nil {
		panic(err)
	}
	return s
}

// Add compiles r and appends it. A rule with an existing ID and the same
// scope replaces the earlier definition in place, keeping its position; a
// rule with a different scope is kept alongside it as a variant.
func (s *RuleSet) Add(r *Rule) error {
	if err := r.Compile(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID == nil {
		s.byID = make(map[string][]*Rule)
	}
	if r.Scoped() {
		s.scoped++
	}
	variants := s.byID[r.ID]
	for vi, old := range variants {
		if !sameScope(old, r) {
			continue
		}
		for i := range s.rules {
			if s.rules[i] == old {
				s.rules[i] = r
				break
			}
		}
		variants[vi] = r
		if old.Scoped() {
			s.scoped--
		}
		return nil
	}
	s.rules = append(s.rules, r)
	s.byID[r.ID] = append(variants, r)
	return nil
}

// Get returns the unscoped rule with the given ID, or its first variant when
// the ID is only defined for specific providers or sites.
func (s *RuleSet) Get(id string) (*Rule, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	variants := s.byID[id]
	if len(variants) == 0 {
		return nil, false
	}
	for _, r := range variants {
		if !r.Scoped() {
			return r, true
		}
	}
	return variants[0], true
}

// Resolve returns the variant of id that governs a record of provider and
// site: the most specific variant whose scope admits them, the latest one
// on ties. ok is false when no variant admits the record. Activation is
// left to the caller, so an inactive override still shadows the base rule.
func (s *RuleSet) Resolve(id, provider, site string) (*Rule, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Rule
	bestRank := -1
	for _, r := range s.byID[id] {
		if !r.AppliesTo(provider, site) {
			continue
		}
		if rank := r.specificity(); rank >= bestRank {
			best, bestRank = r, rank
		}
	}
	return best, best != nil
}

// Scoped reports whether any rule is limited to specific providers or sites.
func (s *RuleSet) Scoped() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scoped > 0
}

// All returns the rules, variants included, in insertion order.
func (s *RuleSet) All() []*Rule {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Len returns the number of rules, variants included.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// ForField returns active rules bound to field, whatever their scope.
func (s *RuleSet) ForField(field string) []*Rule {
	var out []*Rule
	for _, r := range s.All() {
		if r.Field == field && r.IsActive() {
			out = append(out, r)
		}
	}
	return out
}

// Corrections returns active rules for field that carry an auto-correction.
// Callers filter them with AppliesTo.
func (s *RuleSet) Corrections(field string) []*Rule {
	var out []*Rule
	for _, r := range s.ForField(field) {
		if r.HasCorrection() {
			out = append(out, r)
		}
	}
	return out
}

// Threshold returns the numeric reference value of the unscoped rule id, or
// def when the rule is missing, inactive or has no number.
func (s *RuleSet) Threshold(id string, def float64) float64 {
	return s.ThresholdFor(id, "", "", def)
}

// ThresholdFor is Threshold for a record of provider and site: a variant
// scoped to them takes precedence over the base rule.
func (s *RuleSet) ThresholdFor(id, provider, site string, def float64) float64 {
	r, ok := s.Resolve(id, provider, site)
	if !ok || !r.IsActive() {
		return def
	}
	if v, ok := r.Threshold(); ok {
		return v
	}
	return def
}

// Merge adds every rule of other, overriding rules with the same ID and scope.
func (s *RuleSet) Merge(other *RuleSet) error {
	for _, r := range other.All() {
		if err := s.Add(r); err != nil {
			return err
		}
	}
	return nil
}

// File is the on-disk rules document.
type File struct {
	Rules []*Rule `yaml:"reglas"`
}

// Parse decodes a YAML (or JSON) rules document.
func Parse(data []byte) (*RuleSet, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return NewRuleSet(f.Rules...)
}

// LoadFile reads and parses a rules file.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}
