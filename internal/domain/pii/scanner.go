package pii

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	domainErrors "github.com/PhillHH/chat-agent/pkg/errors"
)

// Scanner performs the de-identification step: regex pre-filtering for
// well-shaped PII (emails, phone numbers), then detector entities, each
// replaced by a vault placeholder before the text may travel to the model.
type Scanner struct {
	vault    Vault
	detector Detector
	rules    atomic.Pointer[Ruleset]
	logger   *zap.Logger
}

// NewScanner creates a scanner starting with the built-in ruleset.
func NewScanner(vault Vault, detector Detector, logger *zap.Logger) *Scanner {
	s := &Scanner{
		vault:    vault,
		detector: detector,
		logger:   logger,
	}
	s.rules.Store(DefaultRuleset())
	return s
}

// SetRuleset swaps the active redaction rules. Safe to call while Clean runs;
// in-flight calls finish on the ruleset they started with.
func (s *Scanner) SetRuleset(rs *Ruleset) {
	if rs == nil {
		return
	}
	s.rules.Store(rs)
}

// Ruleset returns the currently active rules.
func (s *Scanner) Ruleset() *Ruleset {
	return s.rules.Load()
}

// Clean replaces every detected PII span in text with a vault placeholder
// and returns the anonymized text. A vault write failure aborts with
// STORE_UNAVAILABLE, a detector failure with FILTER_FAILED; the caller must
// not forward the text to the model in either case.
func (s *Scanner) Clean(ctx context.Context, text string) (string, error) {
	rules := s.rules.Load()

	// Phase A: regex rules, applied in order. Later rules must not re-match
	// inside placeholders placed by earlier ones (a hex suffix can look like
	// a phone number), so substituted regions are skipped.
	for _, rule := range rules.Rules {
		matches := rule.Pattern.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		protected := protectedPattern.FindAllStringIndex(text, -1)
		var b strings.Builder
		last := 0
		for _, m := range matches {
			if intersectsAny(protected, m[0], m[1]) {
				continue
			}
			placeholder, err := s.vault.Store(ctx, text[m[0]:m[1]], rule.Label)
			if err != nil {
				return "", domainErrors.NewStoreUnavailableError("vault write during regex phase failed", err)
			}
			b.WriteString(text[last:m[0]])
			b.WriteString(placeholder)
			last = m[1]
		}
		b.WriteString(text[last:])
		text = b.String()
	}

	// Phase B: detector entities on the pre-filtered text.
	entities, err := s.detector.Predict(ctx, text, rules.Labels)
	if err != nil {
		return "", domainErrors.NewFilterFailedError("entity detection failed", err)
	}

	// Regions substituted in phase A must not be rewritten again.
	protected := protectedPattern.FindAllStringIndex(text, -1)

	// Phase C: substitute in descending start order so earlier offsets stay
	// valid. lowestStart additionally rejects detector spans overlapping a
	// span substituted in an earlier iteration.
	sort.Slice(entities, func(i, j int) bool { return entities[i].Start > entities[j].Start })
	lowestStart := len(text) + 1
	replaced := 0
	for _, ent := range entities {
		if ent.Score < rules.Threshold {
			continue
		}
		if ent.Start < 0 || ent.End > len(text) || ent.Start >= ent.End {
			continue
		}
		if ent.End > lowestStart || intersectsAny(protected, ent.Start, ent.End) {
			continue
		}
		label := ent.Label
		if label == "" {
			label = "ENTITY"
		}
		placeholder, err := s.vault.Store(ctx, text[ent.Start:ent.End], label)
		if err != nil {
			return "", domainErrors.NewStoreUnavailableError("vault write during detector phase failed", err)
		}
		text = text[:ent.Start] + placeholder + text[ent.End:]
		lowestStart = ent.Start
		replaced++
	}

	s.logger.Debug("Cleaned inbound text",
		zap.Int("detector_entities", len(entities)),
		zap.Int("detector_replaced", replaced),
	)
	return text, nil
}

// Restore resolves every placeholder in a complete text. The streaming
// variant lives in StreamRestorer; this one serves non-streaming callers
// such as history assembly.
func (s *Scanner) Restore(ctx context.Context, text string) string {
	return PlaceholderPattern.ReplaceAllStringFunc(text, func(placeholder string) string {
		return s.vault.Resolve(ctx, placeholder)
	})
}

func intersectsAny(spans [][]int, start, end int) bool {
	for _, span := range spans {
		if start < span[1] && end > span[0] {
			return true
		}
	}
	return false
}
