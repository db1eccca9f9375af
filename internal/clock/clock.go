package clock

import (
	"context"
	"time"

	"go.uber.org/fx"
)

// Clock abstracts "now" so billing-period logic is testable.
type Clock interface {
	Now(ctx context.Context) time.Time
}

// Module provides the system clock.
var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
