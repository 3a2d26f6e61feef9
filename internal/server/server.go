package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/connectpay/internal/config"
	connectservice "github.com/smallbiznis/connectpay/internal/connect/service"
	paymentservice "github.com/smallbiznis/connectpay/internal/payment/service"
	payoutservice "github.com/smallbiznis/connectpay/internal/payout/service"
	webhookservice "github.com/smallbiznis/connectpay/internal/webhook/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// NewEngine builds the shared engine with recovery, request logging, error
// mapping and the operational endpoints.
func NewEngine(log *zap.Logger, registry *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, registry *prometheus.Registry) *gin.Engine {
	return NewEngine(log, registry)
}

func run(lc fx.Lifecycle, log *zap.Logger, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
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

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	ConnectSvc *connectservice.Service
	PaymentSvc *paymentservice.Service
	PayoutSvc  *payoutservice.Service
	WebhookSvc *webhookservice.Service
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	connectSvc *connectservice.Service
	paymentSvc *paymentservice.Service
	payoutSvc  *payoutservice.Service
	webhookSvc *webhookservice.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		connectSvc: p.ConnectSvc,
		paymentSvc: p.PaymentSvc,
		payoutSvc:  p.PayoutSvc,
		webhookSvc: p.WebhookSvc,
	}

	svc.registerOrganizationRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerOrganizationRoutes() {
	org := s.engine.Group("/v1/organizations/:org_id")

	org.POST("/connect/account", s.CreateConnectAccount)
	org.POST("/connect/onboarding-link", s.CreateOnboardingLink)
	org.GET("/connect/status", s.GetConnectStatus)

	org.POST("/payments", s.CreatePayment)
	org.GET("/payments", s.ListPayments)

	org.POST("/payouts/instant", s.RequestInstantPayout)
	org.GET("/payouts", s.ListPayouts)
	org.GET("/balance", s.GetBalance)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/v1/webhooks/stripe", s.HandleStripeWebhook)
}
