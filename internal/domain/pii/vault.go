package pii

import "context"

// Vault stores originals behind placeholders for a bounded lifetime.
type Vault interface {
	// Store writes original under a freshly minted placeholder for label and
	// returns that placeholder. A failed write must surface as an error:
	// continuing a turn whose PII could not be parked is never acceptable.
	Store(ctx context.Context, original, label string) (string, error)

	// Resolve returns the original behind placeholder. Unknown or expired
	// placeholders and store outages all degrade to returning the placeholder
	// unchanged; a leaked placeholder is safer than a dropped reply, so this
	// call never fails the stream.
	Resolve(ctx context.Context, placeholder string) string
}
