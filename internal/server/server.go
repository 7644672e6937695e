package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	assistantdomain "github.com/smallbiznis/creditledger/internal/assistant/domain"
	"github.com/smallbiznis/creditledger/internal/authorization"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creditledger/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/creditledger/internal/payment/domain"
	purchasedomain "github.com/smallbiznis/creditledger/internal/purchase/domain"
	"github.com/smallbiznis/creditledger/internal/ratelimit"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	log          *zap.Logger
	authzSvc     authorization.Service
	catalogSvc   catalogdomain.Service
	ledgerSvc    ledgerdomain.Service
	purchaseSvc  purchasedomain.Service
	dispatcher   paymentdomain.Dispatcher
	usageSvc     usagedomain.Service
	assistantSvc assistantdomain.Service
	limiter      *ratelimit.Limiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	AuthzSvc     authorization.Service
	CatalogSvc   catalogdomain.Service
	LedgerSvc    ledgerdomain.Service
	PurchaseSvc  purchasedomain.Service
	Dispatcher   paymentdomain.Dispatcher
	UsageSvc     usagedomain.Service
	AssistantSvc assistantdomain.Service
	Limiter      *ratelimit.Limiter  `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		authzSvc:     p.AuthzSvc,
		catalogSvc:   p.CatalogSvc,
		ledgerSvc:    p.LedgerSvc,
		purchaseSvc:  p.PurchaseSvc,
		dispatcher:   p.Dispatcher,
		usageSvc:     p.UsageSvc,
		assistantSvc: p.AssistantSvc,
		limiter:      p.Limiter,
		obsMetrics:   p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payment Webhooks --------
	// Authenticated by the gateway signature, not by identity headers.
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)

	user := api.Group("", s.IdentityRequired())

	// -------- Credits --------
	user.GET("/credits", s.GetCredits)
	user.GET("/credits/pricing", s.GetPricing)
	user.GET("/credits/bundles", s.ListBundles)
	user.POST("/credits/orders", s.RateLimit(ratelimit.EndpointOrders), s.CreateOrder)
	user.POST("/credits/orders/verify", s.VerifyPayment)
	user.POST("/credits/wallet-purchase", s.PurchaseWithWallet)

	// -------- Purchases --------
	user.GET("/credits/purchases", s.ListPurchases)
	user.GET("/credits/purchases/:order_id", s.GetPurchase)
	user.GET("/credits/purchases/:order_id/receipt", s.GetPurchaseReceipt)

	// -------- Wallet & Usage --------
	user.GET("/wallet", s.GetWallet)
	user.GET("/usage", s.GetUsage)

	// -------- Assistant --------
	user.POST("/assistant/ask", s.RateLimit(ratelimit.EndpointAssistant), s.Ask)
	user.GET("/assistant/messages", s.ListMessages)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.IdentityRequired())

	admin.PATCH("/credits/pricing", s.authorizeAdmin(authorization.ObjectPricing, authorization.ActionPricingUpdate), s.UpdatePricing)
	admin.POST("/credits/bundles", s.authorizeAdmin(authorization.ObjectBundle, authorization.ActionBundleCreate), s.CreateBundle)
	admin.PATCH("/credits/bundles/:id", s.authorizeAdmin(authorization.ObjectBundle, authorization.ActionBundleUpdate), s.UpdateBundle)
	admin.DELETE("/credits/bundles/:id", s.authorizeAdmin(authorization.ObjectBundle, authorization.ActionBundleDelete), s.DeactivateBundle)

	admin.GET("/credits/usage", s.authorizeAdmin(authorization.ObjectCredits, authorization.ActionCreditsUsageList), s.ListCreditUsage)
	admin.POST("/users/:user_id/credits/grant", s.authorizeAdmin(authorization.ObjectCredits, authorization.ActionCreditsGrant), s.GrantCredits)
	admin.POST("/users/:user_id/wallet/adjust", s.authorizeAdmin(authorization.ObjectWallet, authorization.ActionWalletAdjust), s.AdjustWallet)
	admin.GET("/users/:user_id/wallet/reconcile", s.authorizeAdmin(authorization.ObjectWallet, authorization.ActionWalletReconcile), s.ReconcileWallet)

	admin.GET("/purchases", s.authorizeAdmin(authorization.ObjectPurchase, authorization.ActionPurchaseList), s.ListAllPurchases)
	admin.POST("/purchases/:order_id/refund", s.authorizeAdmin(authorization.ObjectPurchase, authorization.ActionPurchaseRefund), s.RefundPurchase)
	admin.POST("/purchases/:order_id/fail", s.authorizeAdmin(authorization.ObjectPurchase, authorization.ActionPurchaseFail), s.FailPurchase)

	admin.GET("/stats", s.authorizeAdmin(authorization.ObjectStats, authorization.ActionStatsView), s.GetStats)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
