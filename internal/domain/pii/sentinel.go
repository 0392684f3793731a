package pii

import "strings"

// EscalationSentinel is the literal marker the model emits when it cannot
// help and wants a human to take over. It travels in-band inside the token
// stream and must never reach the user.
const EscalationSentinel = "ESKALATION_NOETIG"

// SentinelDetector watches the raw model stream for the sentinel. Detection
// works across fragment boundaries: a rolling tail of len(sentinel)-1 bytes
// is kept so a split occurrence is still seen. The detector latches after
// the first hit.
//
// Not safe for concurrent use; one instance serves one stream.
type SentinelDetector struct {
	tail    string
	spotted bool
}

// Feed consumes the next raw fragment and reports whether the sentinel has
// been seen so far in the stream.
func (d *SentinelDetector) Feed(fragment string) bool {
	if d.spotted {
		return true
	}
	joined := d.tail + fragment
	if strings.Contains(joined, EscalationSentinel) {
		d.spotted = true
		d.tail = ""
		return true
	}
	if keep := len(EscalationSentinel) - 1; len(joined) > keep {
		joined = joined[len(joined)-keep:]
	}
	d.tail = joined
	return false
}

// Spotted reports whether the sentinel was seen in any fragment so far.
func (d *SentinelDetector) Spotted() bool {
	return d.spotted
}

// SentinelFilter strips the sentinel from the user-bound copy of the stream.
// Complete occurrences are dropped; a trailing run that is still a proper
// prefix of the sentinel is held back until later input disambiguates it, so
// no part of a split sentinel ever reaches the user.
//
// Not safe for concurrent use; one instance serves one stream.
type SentinelFilter struct {
	pending string
}

// Feed consumes the next fragment and returns the text that is safe to pass
// on. The returned string may be empty while the filter is holding back a
// possible sentinel prefix.
func (f *SentinelFilter) Feed(fragment string) string {
	text := f.pending + fragment
	f.pending = ""
	text = strings.ReplaceAll(text, EscalationSentinel, "")

	max := len(EscalationSentinel) - 1
	if max > len(text) {
		max = len(text)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(text, EscalationSentinel[:k]) {
			f.pending = EscalationSentinel[:k]
			text = text[:len(text)-k]
			break
		}
	}
	return text
}

// Flush releases held-back text that turned out not to complete the
// sentinel. Call once at end of stream.
func (f *SentinelFilter) Flush() string {
	rest := f.pending
	f.pending = ""
	return rest
}
