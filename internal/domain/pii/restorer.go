package pii

import "strings"

// ResolveFunc maps a well-formed placeholder to its original text. It must
// return the placeholder unchanged when no mapping exists.
type ResolveFunc func(placeholder string) string

// StreamRestorer re-personalizes a model token stream. Placeholders may be
// split across arbitrarily many fragments; the restorer buffers exactly as
// much as needed to decide whether a '<' opens a placeholder and never emits
// a partial one. Output depends only on the concatenated input, so any
// refragmentation of the same stream restores to the same text.
//
// Not safe for concurrent use; one instance serves one stream.
type StreamRestorer struct {
	resolve ResolveFunc
	buffer  string
}

// NewStreamRestorer creates a restorer for one stream.
func NewStreamRestorer(resolve ResolveFunc) *StreamRestorer {
	return &StreamRestorer{resolve: resolve}
}

// Feed consumes the next raw fragment and returns the pieces that became
// safe to deliver, in order. A returned piece is either passthrough text,
// a verbatim non-placeholder tag like <br>, or a fully resolved placeholder.
func (r *StreamRestorer) Feed(fragment string) []string {
	r.buffer += fragment
	var out []string
	for {
		i := strings.IndexByte(r.buffer, '<')
		if i == -1 {
			if r.buffer != "" {
				out = append(out, r.buffer)
				r.buffer = ""
			}
			return out
		}
		if i > 0 {
			out = append(out, r.buffer[:i])
			r.buffer = r.buffer[i:]
		}
		// Buffer starts with '<'.
		j := strings.IndexByte(r.buffer, '>')
		if j != -1 {
			cand := r.buffer[:j+1]
			if placeholderExact.MatchString(cand) {
				out = append(out, r.resolve(cand))
			} else {
				// Benign markup such as <br> passes through verbatim.
				out = append(out, cand)
			}
			r.buffer = r.buffer[j+1:]
			continue
		}
		// No '>' yet. A placeholder continues with an uppercase letter;
		// once the next char is known to be anything else, the '<' is
		// released immediately.
		if len(r.buffer) >= 2 {
			c := r.buffer[1]
			if c < 'A' || c > 'Z' {
				out = append(out, "<")
				r.buffer = r.buffer[1:]
				continue
			}
		}
		// Wait for more input.
		return out
	}
}

// Flush returns whatever is still buffered, for emission at end of stream.
// An unterminated suspected placeholder is released as-is rather than lost.
func (r *StreamRestorer) Flush() string {
	rest := r.buffer
	r.buffer = ""
	return rest
}
