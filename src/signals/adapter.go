package signals

import (
	"context"

	"papertrader/src/model"
)

// Adapter is the boundary to whatever computes indicator values. The engine
// treats it as slow and fallible: every call carries a context deadline and
// a failed fetch degrades that instrument's decision to HOLD for the tick.
type Adapter interface {
	Snapshot(ctx context.Context, instrument string) (*model.SignalSnapshot, error)
}
