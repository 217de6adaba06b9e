package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/cache"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/domain/returns"
	"github.com/xenking/storefront/internal/domain/user"
	"github.com/xenking/storefront/internal/domain/wishlist"
	"github.com/xenking/storefront/internal/seed"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
)

// backend is the set of repositories the services are built on.
type backend struct {
	products product.Repository
	carts    cart.Repository
	coupons  coupon.Repository
	orders   order.Store
	returns  returns.Repository
	wishlist wishlist.Repository
	users    user.Repository
	apiKeys  auth.Repository
	idem     order.Idempotency

	close func()
}

// openBackend connects the configured storage and the optional Redis layer,
// registering their readiness checks on h.
func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (*backend, error) {
	var (
		b   *backend
		err error
	)
	switch cfg.Storage {
	case StorageMemory:
		b, err = openMemory(ctx, lg, cfg, h)
	default:
		b, err = openPostgres(ctx, cfg, h)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisURL == "" {
		return b, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		b.close()
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		b.close()
		return nil, errors.Wrap(err, "ping redis")
	}
	h.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	b.idem = cache.NewIdempotency(client, cfg.Cache.Prefix, cfg.Checkout.IdempotencyTTL, cfg.Checkout.IdempotencyClaim)
	b.products = cache.NewProducts(b.products, client, cfg.Cache.Prefix, cfg.Cache.ProductTTL)

	closeStorage := b.close
	b.close = func() {
		_ = client.Close()
		closeStorage()
	}
	lg.Info("Redis enabled", zap.String("addr", opts.Addr))
	return b, nil
}

func openPostgres(ctx context.Context, cfg *Config, h *health.Health) (*backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.MaxConns)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

	// Idempotency keys stay in process unless Redis replaces the store. They
	// are then only recognized by the replica that saw them first.
	return &backend{
		products: postgres.NewProductRepository(pool),
		carts:    postgres.NewCartRepository(pool),
		coupons:  postgres.NewCouponRepository(pool),
		orders:   postgres.NewOrderStore(pool),
		returns:  postgres.NewReturnRepository(pool),
		wishlist: postgres.NewWishlistRepository(pool),
		users:    postgres.NewUserRepository(pool),
		apiKeys:  postgres.NewAPIKeyRepository(pool),
		idem:     memory.NewIdempotency(cfg.Checkout.IdempotencyTTL, cfg.Checkout.IdempotencyClaim),
		close:    pool.Close,
	}, nil
}

// openMemory builds an in-process store loaded with the demo data. It is meant
// for local development: nothing survives a restart.
func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (*backend, error) {
	db := memory.New()
	h.AddReadinessCheck("memory", time.Second, health.PingCheck(db))
	data, err := seed.Demo(time.Now())
	if err != nil {
		return nil, errors.Wrap(err, "load demo data")
	}
	if err := seed.Apply(ctx, seed.Memory(db), data); err != nil {
		return nil, errors.Wrap(err, "seed memory store")
	}
	if cfg.Auth.AdminKey != "" {
		db.PutAPIKey(auth.APIKeyInfo{
			ID:      uuid.NewString(),
			KeyHash: auth.HashAPIKey(cfg.Auth.AdminKey, []byte(cfg.Auth.APIKeyPepper)),
			Name:    "dev admin",
			Scopes:  []string{auth.ScopeAdmin},
		})
	}

	token, expires, err := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), 24*time.Hour).
		Issue(seed.DemoUserID, "demo@example.com")
	if err != nil {
		return nil, errors.Wrap(err, "issue demo token")
	}
	lg.Warn("Using in-memory storage with demo data",
		zap.Int("products", len(data.Products)),
		zap.String("demo_user", seed.DemoUserID),
		zap.String("demo_token", token),
		zap.Time("demo_token_expires", expires),
	)

	return &backend{
		products: db.Products(),
		carts:    db.Carts(),
		coupons:  db.Coupons(),
		orders:   db.Orders(),
		returns:  db.Returns(),
		wishlist: db.Wishlists(),
		users:    db.Users(),
		apiKeys:  db.APIKeys(),
		idem:     memory.NewIdempotency(cfg.Checkout.IdempotencyTTL, cfg.Checkout.IdempotencyClaim),
		close:    func() {},
	}, nil
}
