// Package pii implements the de-identification pipeline of the gateway:
// minting reversible vault placeholders for detected PII, scrubbing inbound
// text before it reaches the model, restoring placeholders in the model's
// token stream and recognizing the escalation sentinel inside that stream.
package pii

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Placeholder grammar: <LABEL_xxxxxxxx> with an uppercase entity kind and an
// 8-char lowercase-hex suffix. The stream restorer depends on this exact
// shape to tell placeholders from benign markup like <br>.
var (
	// PlaceholderPattern locates well-formed placeholders inside larger text.
	PlaceholderPattern = regexp.MustCompile(`<[A-Z]+_[0-9a-f]+>`)

	// placeholderExact validates a single <...> candidate end to end.
	placeholderExact = regexp.MustCompile(`^<[A-Z]+_[0-9a-f]+>$`)

	// protectedPattern is the looser shape used when guarding already
	// substituted regions in the scanner. Labels loaded from a rules file
	// may carry suffix characters outside the strict grammar.
	protectedPattern = regexp.MustCompile(`<[A-Z]+_[^>]+>`)
)

// MintPlaceholder returns a fresh placeholder for label. The suffix is the
// first 8 hex chars of a v4 UUID, which google/uuid draws from crypto/rand.
func MintPlaceholder(label string) string {
	return fmt.Sprintf("<%s_%s>", strings.ToUpper(label), uuid.NewString()[:8])
}

// IsPlaceholder reports whether s is exactly one well-formed placeholder.
func IsPlaceholder(s string) bool {
	return placeholderExact.MatchString(s)
}
