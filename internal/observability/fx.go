package observability

import (
	"github.com/tenantly/tenantly/internal/observability/metrics"
	"github.com/tenantly/tenantly/internal/observability/tracing"
	"go.uber.org/fx"
)

var Module = fx.Options(
	metrics.Module,
	tracing.Module,
)
