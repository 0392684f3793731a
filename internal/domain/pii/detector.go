package pii

import "context"

// Entity is one typed span found by the external classifier. Start and End
// are half-open byte offsets into the scanned text.
type Entity struct {
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Detector asks an external model for entity spans matching the given labels.
type Detector interface {
	Predict(ctx context.Context, text string, labels []string) ([]Entity, error)
}
