package service

import "context"

// Assistant maintains one conversation per session on the LLM backend and
// turns anonymized prompts into raw token streams.
type Assistant interface {
	// Stream posts prompt into the session's conversation and pushes text
	// deltas into deltas until the run finishes. The caller owns the channel
	// and closes it after Stream returns. Cancelling ctx abandons the run;
	// a leftover run on the backend is acceptable.
	Stream(ctx context.Context, sessionID, prompt string, deltas chan<- string) error

	// History returns the session transcript as "User: ..." and
	// "Assistant: ..." lines in chronological order. Any backend error
	// degrades to an empty slice; escalation must not fail over history.
	History(ctx context.Context, sessionID string) []string
}
