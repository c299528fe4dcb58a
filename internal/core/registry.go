package core

import (
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/parque/internal/policy"
)

// Outcome is the result of one business predicate.
type Outcome int

const (
	Pass          Outcome = iota // predicate held
	Fail                         // predicate fired
	NotApplicable                // record lacks the data the predicate needs
)

// Violation describes why a predicate fired.
type Violation struct {
	Message  string
	Value    string
	Expected string
}

// RuleEnv is what a predicate sees besides the record.
type RuleEnv struct {
	Rule  *policy.Rule    // declarative configuration of this rule
	Rules *policy.RuleSet // full rule set, for auxiliary thresholds
}

// BusinessRule is a named, ordered predicate over a normalized record.
type BusinessRule struct {
	ID              string
	Name            string
	Field           string
	Code            string
	Severity        Severity
	Summary         string // row-independent wording for the error ledger
	SuggestedAction string
	Order           int

	// Declarative defaults for the backing policy rule.
	Kind     policy.Kind
	Operator policy.Operator
	Min      *float64
	Values   []string

	Check func(rec *InventoryRecord, env RuleEnv) (Outcome, Violation)
}

// PolicyRule returns the default declarative rule backing br.
func (br BusinessRule) PolicyRule() *policy.Rule {
	return &policy.Rule{
		ID:              br.ID,
		Name:            br.Name,
		Description:     br.Summary,
		Field:           br.Field,
		Kind:            br.Kind,
		Operator:        br.Operator,
		Min:             br.Min,
		Values:          append([]string(nil), br.Values...),
		Severity:        br.Severity,
		Blocking:        br.Severity.Blocks(),
		SuggestedAction: br.SuggestedAction,
	}
}

var (
	ruleRegistry   = make(map[string]BusinessRule)
	ruleRegistryMu sync.RWMutex
)

// RegisterBusinessRule adds a rule to the registry.
// Panics if a rule with the same ID is already registered.
func RegisterBusinessRule(br BusinessRule) {
	ruleRegistryMu.Lock()
	defer ruleRegistryMu.Unlock()

	if _, exists := ruleRegistry[br.ID]; exists {
		panic(fmt.Sprintf("business rule already registered: %s", br.ID))
	}
	if br.Check == nil {
		panic(fmt.Sprintf("business rule without predicate: %s", br.ID))
	}
	ruleRegistry[br.ID] = br
}

// LookupBusinessRule returns a registered rule by ID.
func LookupBusinessRule(id string) (BusinessRule, bool) {
	ruleRegistryMu.RLock()
	defer ruleRegistryMu.RUnlock()

	br, ok := ruleRegistry[id]
	return br, ok
}

// BusinessRules returns all registered rules in evaluation order.
func BusinessRules() []BusinessRule {
	ruleRegistryMu.RLock()
	defer ruleRegistryMu.RUnlock()

	result := make([]BusinessRule, 0, len(ruleRegistry))
	for _, br := range ruleRegistry {
		result = append(result, br)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})

	return result
}

// BusinessRuleCount returns the number of registered rules.
func BusinessRuleCount() int {
	ruleRegistryMu.RLock()
	defer ruleRegistryMu.RUnlock()
	return len(ruleRegistry)
}
