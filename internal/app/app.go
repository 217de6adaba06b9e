package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/returns"
	"github.com/xenking/storefront/internal/domain/wishlist"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg, closeLog, err := withLogFile(lg, cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()
	ctx = zctx.Base(ctx, lg)

	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.String("storage", cfg.Storage))

	// Health check service.
	healthSvc := health.New()
	b, err := openBackend(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer b.close()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h, err := newHandler(cfg, b, m)
	if err != nil {
		return err
	}

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           newRouter(ctx, lg, m, cfg, h, healthSvc),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newRouter mounts the API and health endpoints behind the middleware chain.
func newRouter(
	ctx context.Context,
	lg *zap.Logger,
	m httpmiddleware.Telemetry,
	cfg *Config,
	h *handler.Handler,
	healthSvc *health.Health,
) http.Handler {
	api := h.Routes()
	routeFinder := httpmiddleware.MakeRouteFinder(api)
	root := chi.NewRouter()
	root.Get("/livez", healthSvc.LiveEndpoint)
	root.Get("/readyz", healthSvc.ReadyEndpoint)
	root.Mount("/", api)

	return httpmiddleware.Wrap(root,
		httpmiddleware.Recovery(lg),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins: cfg.CORS.Origins,
			AllowHeaders: []string{
				"Content-Type", "Authorization", handler.APIKeyHeader,
				handler.IdempotencyKeyHeader, httpmiddleware.RequestIDHeader,
			},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           24 * time.Hour,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:     cfg.RateLimit.Max,
			Window:  cfg.RateLimit.Window,
			KeyFunc: httpmiddleware.CredentialKey(handler.APIKeyHeader, "Authorization"),
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument("storefront-api", routeFinder, m),
		httpmiddleware.LogRequests(routeFinder),
		httpmiddleware.Labeler(routeFinder),
	)
}

// newHandler builds the domain services over b.
func newHandler(cfg *Config, b *backend, m httpmiddleware.Telemetry) (*handler.Handler, error) {
	policy, err := coupon.ParsePolicy(cfg.Checkout.CouponPolicy)
	if err != nil {
		return nil, err
	}
	ledger, err := coupon.NewLedger(cfg.Checkout.ReserveAttempts, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return nil, errors.Wrap(err, "create ledger")
	}
	orders, err := order.NewService(b.orders, b.users, ledger, policy, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}
	orders.WithIdempotency(b.idem)

	return handler.NewHandler(handler.Config{ImageBaseURL: cfg.ImageBaseURL}, handler.Services{
		Products: b.products,
		Carts:    cart.NewService(b.carts, b.products),
		Coupons:  coupon.NewService(b.coupons),
		Orders:   orders,
		Returns:  returns.NewService(b.returns, b.orders, cfg.Checkout.ReturnWindow),
		Wishlist: wishlist.NewService(b.wishlist, b.products),
		Tokens:   auth.NewTokenVerifier([]byte(cfg.Auth.JWTSecret)),
		Keys:     auth.NewKeyAuthenticator(b.apiKeys, []byte(cfg.Auth.APIKeyPepper)),
	}), nil
}
