package rules

import (
	"fmt"

	"eduscale/internal/event"
)

// Engine evaluates routing rules in declaration order. Rules are immutable
// after construction, so an Engine is safe for concurrent use without
// locking.
type Engine struct {
	rules []Rule
}

// NewEngine validates the rule set and builds an engine over it.
func NewEngine(ruleSet []Rule) (*Engine, error) {
	seen := make(map[string]struct{}, len(ruleSet))
	for _, rule := range ruleSet {
		if err := rule.validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[rule.Name]; dup {
			return nil, fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = struct{}{}
	}
	cp := make([]Rule, len(ruleSet))
	copy(cp, ruleSet)
	return &Engine{rules: cp}, nil
}

// Match returns the first rule whose predicates all hold for n, or false when
// the notification is outside every configured pipeline path. Pure function
// of (notification, rule set); no side effects.
func (e *Engine) Match(n event.Notification) (Rule, bool) {
	for _, rule := range e.rules {
		if rule.Matches(n) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Rules returns a copy of the configured rule set in declaration order.
func (e *Engine) Rules() []Rule {
	cp := make([]Rule, len(e.rules))
	copy(cp, e.rules)
	return cp
}

// Defaults returns the built-in rule set for the given ingest bucket:
// uploads route to classification, classified objects to extraction, text
// artifacts to structuring, and clean batches to warehouse loading.
func Defaults(bucket string) []Rule {
	prefix := func(pattern string) []Predicate {
		return []Predicate{
			{Attribute: AttributeBucket, Operator: OperatorExact, Value: bucket},
			{Attribute: AttributeObjectPath, Operator: OperatorPathPrefix, Value: pattern},
		}
	}
	return []Rule{
		{Name: "uploads", Destination: "classify", ServiceIdentity: "svc-classifier", Predicates: prefix("uploads/*")},
		{Name: "classified", Destination: "extract", ServiceIdentity: "svc-transformer", Predicates: prefix("classified/*")},
		{Name: "text", Destination: "structure", ServiceIdentity: "svc-tabular", Predicates: prefix("text/*")},
		{Name: "clean", Destination: "load", ServiceIdentity: "svc-warehouse", Predicates: prefix("clean/*")},
	}
}
