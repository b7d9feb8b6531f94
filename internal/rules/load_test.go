package rules_test

import (
	"os"
	"path/filepath"
	"testing"

	"eduscale/internal/rules"
)

const validRules = `{
  "rules": [
    {
      "name": "uploads",
      "destination": "classify",
      "service_identity": "svc-classifier",
      "predicates": [
        {"attribute": "bucket", "operator": "exact", "value": "ingest"},
        {"attribute": "objectPath", "operator": "path-prefix-pattern", "value": "uploads/*"}
      ]
    }
  ]
}`

func TestParseValidDocument(t *testing.T) {
	ruleSet, err := rules.Parse([]byte(validRules))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(ruleSet) != 1 || ruleSet[0].Destination != "classify" {
		t.Fatalf("unexpected rules: %#v", ruleSet)
	}
	if len(ruleSet[0].Predicates) != 2 {
		t.Fatalf("predicates = %d", len(ruleSet[0].Predicates))
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"unknown destination", `{"rules":[{"name":"x","destination":"transcode","predicates":[{"attribute":"bucket","operator":"exact","value":"b"}]}]}`},
		{"unknown operator", `{"rules":[{"name":"x","destination":"classify","predicates":[{"attribute":"bucket","operator":"regex","value":"b"}]}]}`},
		{"empty predicates", `{"rules":[{"name":"x","destination":"classify","predicates":[]}]}`},
		{"missing rules key", `{}`},
		{"extra field", `{"rules":[],"retry":5}`},
	}
	for _, tc := range cases {
		if _, err := rules.Parse([]byte(tc.doc)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte(validRules), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	ruleSet, err := rules.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ruleSet) != 1 {
		t.Fatalf("rules = %d", len(ruleSet))
	}
	if _, err := rules.Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
