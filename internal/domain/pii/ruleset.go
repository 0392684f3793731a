package pii

import "regexp"

// Rule is one regex redaction rule. Matches are parked in the vault under
// the rule's label.
type Rule struct {
	Label   string
	Pattern *regexp.Regexp
}

// Ruleset bundles everything the scanner needs to decide what counts as PII:
// the regex pre-filter rules, the detector label set and the confidence
// cut-off for detector hits. A ruleset is immutable once built; the scanner
// swaps whole rulesets when the rules file changes.
type Ruleset struct {
	Rules     []Rule
	Labels    []string
	Threshold float64
}

// DefaultRuleset returns the built-in redaction rules: email and a loose
// international phone shape in the regex phase, person/organization/city for
// the detector with a 0.7 confidence floor.
func DefaultRuleset() *Ruleset {
	return &Ruleset{
		Rules: []Rule{
			{
				Label:   "EMAIL",
				Pattern: regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
			},
			{
				Label:   "PHONE",
				Pattern: regexp.MustCompile(`(\+?\d{1,3}[\s\-]?)?(?:\(?\d{2,5}\)?[\s\-]?)?\d[\d\s\-]{5,}\d`),
			},
		},
		Labels:    []string{"person", "organization", "city"},
		Threshold: 0.7,
	}
}
