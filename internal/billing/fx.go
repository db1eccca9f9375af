package billing

import (
	"github.com/tenantly/tenantly/internal/billing/domain"
	"github.com/tenantly/tenantly/internal/billing/service"
	"github.com/tenantly/tenantly/internal/billing/stripeadapter"
	"github.com/tenantly/tenantly/internal/billing/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(
		fx.Annotate(stripeadapter.New, fx.As(new(domain.Provider))),
		service.NewCommandService,
		webhook.NewReconciler,
	),
)
