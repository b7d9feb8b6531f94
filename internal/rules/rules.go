package rules

import (
	"fmt"
	"strings"

	"eduscale/internal/event"
)

// Operator selects how a predicate compares its value against a notification
// attribute.
type Operator string

const (
	// OperatorExact requires attribute value equality.
	OperatorExact Operator = "exact"
	// OperatorPathPrefix requires the attribute value to begin with the
	// pattern's literal prefix up to its wildcard boundary.
	OperatorPathPrefix Operator = "path-prefix-pattern"
)

// Attribute names a notification field a predicate can match on.
type Attribute string

const (
	AttributeBucket      Attribute = "bucket"
	AttributeObjectPath  Attribute = "objectPath"
	AttributeContentType Attribute = "contentType"
)

// Predicate is one condition within a rule. All predicates of a rule must
// hold for the rule to match.
type Predicate struct {
	Attribute Attribute `json:"attribute"`
	Operator  Operator  `json:"operator"`
	Value     string    `json:"value"`
}

// Rule maps notification predicates to a processing destination.
type Rule struct {
	Name            string      `json:"name"`
	Destination     string      `json:"destination"`
	ServiceIdentity string      `json:"service_identity,omitempty"`
	Predicates      []Predicate `json:"predicates"`
}

func (p Predicate) matches(n event.Notification) bool {
	value, ok := attributeValue(n, p.Attribute)
	if !ok {
		return false
	}
	switch p.Operator {
	case OperatorExact:
		return value == p.Value
	case OperatorPathPrefix:
		return strings.HasPrefix(value, literalPrefix(p.Value))
	default:
		return false
	}
}

// Matches reports whether every predicate of the rule holds for n.
func (r Rule) Matches(n event.Notification) bool {
	if len(r.Predicates) == 0 {
		return false
	}
	for _, p := range r.Predicates {
		if !p.matches(n) {
			return false
		}
	}
	return true
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name must be set")
	}
	if strings.TrimSpace(r.Destination) == "" {
		return fmt.Errorf("rule %s: destination must be set", r.Name)
	}
	if len(r.Predicates) == 0 {
		return fmt.Errorf("rule %s: at least one predicate is required", r.Name)
	}
	for i, p := range r.Predicates {
		switch p.Operator {
		case OperatorExact, OperatorPathPrefix:
		default:
			return fmt.Errorf("rule %s: predicate %d: unknown operator %q", r.Name, i, p.Operator)
		}
		switch p.Attribute {
		case AttributeBucket, AttributeObjectPath, AttributeContentType:
		default:
			return fmt.Errorf("rule %s: predicate %d: unknown attribute %q", r.Name, i, p.Attribute)
		}
		if p.Value == "" {
			return fmt.Errorf("rule %s: predicate %d: value must be set", r.Name, i)
		}
	}
	return nil
}

func attributeValue(n event.Notification, attr Attribute) (string, bool) {
	switch attr {
	case AttributeBucket:
		return n.Bucket, true
	case AttributeObjectPath:
		return n.ObjectPath, true
	case AttributeContentType:
		return n.ContentType, true
	default:
		return "", false
	}
}

func literalPrefix(pattern string) string {
	if idx := strings.IndexByte(pattern, '*'); idx >= 0 {
		return pattern[:idx]
	}
	return pattern
}
