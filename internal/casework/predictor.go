package casework

import "context"

// Predictor estimates how likely a dispute is to succeed. The estimate comes
// from an external scoring service; no scoring logic lives here.
type Predictor interface {
	Predict(ctx context.Context, d *Dispute) (float64, error)
}

// StaticPredictor answers every dispute with the same probability.
type StaticPredictor struct {
	Probability float64
}

func (p StaticPredictor) Predict(context.Context, *Dispute) (float64, error) {
	return p.Probability, nil
}
