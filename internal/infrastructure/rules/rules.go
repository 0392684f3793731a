// Package rules loads the redaction ruleset from a yaml file and keeps it
// current while the gateway runs. The file is optional; without it the
// built-in defaults stay active.
package rules

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/PhillHH/chat-agent/internal/domain/pii"
)

type fileRuleset struct {
	Threshold float64    `yaml:"threshold"`
	Labels    []string   `yaml:"labels"`
	Rules     []fileRule `yaml:"rules"`
}

type fileRule struct {
	Label   string `yaml:"label"`
	Pattern string `yaml:"pattern"`
}

// Load reads and compiles the ruleset at path. Missing threshold or labels
// fall back to the built-in defaults; an empty rules list is allowed and
// disables the regex phase on purpose.
func Load(path string) (*pii.Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file fileRuleset
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	defaults := pii.DefaultRuleset()
	rs := &pii.Ruleset{
		Threshold: file.Threshold,
		Labels:    file.Labels,
	}
	if rs.Threshold <= 0 {
		rs.Threshold = defaults.Threshold
	}
	if len(rs.Labels) == 0 {
		rs.Labels = defaults.Labels
	}

	for _, rule := range file.Rules {
		if rule.Label == "" {
			return nil, fmt.Errorf("rule with pattern %q has no label", rule.Pattern)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pattern for rule %s: %w", rule.Label, err)
		}
		rs.Rules = append(rs.Rules, pii.Rule{Label: rule.Label, Pattern: re})
	}
	return rs, nil
}
