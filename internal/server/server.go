package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tenantly/tenantly/internal/authorization"
	billingdomain "github.com/tenantly/tenantly/internal/billing/domain"
	billingwebhook "github.com/tenantly/tenantly/internal/billing/webhook"
	"github.com/tenantly/tenantly/internal/config"
	obsmetrics "github.com/tenantly/tenantly/internal/observability/metrics"
	organizationdomain "github.com/tenantly/tenantly/internal/organization/domain"
	"github.com/tenantly/tenantly/internal/ratelimit"
	usagedomain "github.com/tenantly/tenantly/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(AccessLogMiddleware(log))
	if m != nil {
		r.Use(obsmetrics.GinMiddleware(m))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type engineParams struct {
	fx.In

	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func registerGin(p engineParams) *gin.Engine {
	return NewEngine(p.Log, p.Metrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	authzSvc     authorization.Service
	orgRepo      organizationdomain.Repository
	usageSvc     usagedomain.Service
	billingSvc   billingdomain.CommandService
	reconciler   *billingwebhook.Reconciler
	usageLimiter *ratelimit.UsageIngestLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	AuthzSvc     authorization.Service
	OrgRepo      organizationdomain.Repository
	UsageSvc     usagedomain.Service
	BillingSvc   billingdomain.CommandService
	Reconciler   *billingwebhook.Reconciler
	UsageLimiter *ratelimit.UsageIngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		db:           p.DB,
		log:          p.Log.Named("server"),
		genID:        p.GenID,
		authzSvc:     p.AuthzSvc,
		orgRepo:      p.OrgRepo,
		usageSvc:     p.UsageSvc,
		billingSvc:   p.BillingSvc,
		reconciler:   p.Reconciler,
		usageLimiter: p.UsageLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.engine.GET("/readyz", svc.Readiness)

	return svc
}

// Readiness reports whether the server can reach its database. Load
// balancers use this to take the instance out of rotation.
func (s *Server) Readiness(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		s.log.Warn("readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1", s.IdentityRequired())

	org := v1.Group("/organizations/:org_id", s.OrgContext())

	billing := org.Group("/billing", s.AdminRequired())
	billing.POST("/checkout", s.StartCheckout)
	billing.POST("/portal", s.OpenPortal)
	billing.PUT("/seats", s.SetSeats)
	billing.POST("/cancel", s.CancelSubscription)
	billing.POST("/reactivate", s.ReactivateSubscription)

	org.POST("/usage", s.AdminRequired(), s.RecordUsage)
	org.GET("/usage/summary", s.MemberRequired(), s.UsageSummary)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/v1/webhooks/stripe", s.StripeWebhook)
}
