package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/seed"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type options struct {
	databaseURL  string
	apiKey       string
	apiKeyPepper string
	jwtSecret    string
	tokenTTL     time.Duration
}

func main() {
	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_AUTH_API_KEY_PEPPER env)")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "secret for the demo customer token (or SHOP_AUTH_JWT_SECRET env)")
	flag.DurationVar(&opts.tokenTTL, "token-ttl", 7*24*time.Hour, "demo customer token lifetime")
	flag.Parse()

	opts.databaseURL = orEnv(opts.databaseURL, "DATABASE_URL")
	opts.apiKey = orEnv(opts.apiKey, "SHOP_SEED_API_KEY")
	opts.apiKeyPepper = orEnv(opts.apiKeyPepper, "SHOP_AUTH_API_KEY_PEPPER")
	opts.jwtSecret = orEnv(opts.jwtSecret, "SHOP_AUTH_JWT_SECRET")

	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.apiKey == "" {
		slog.Error("API key is required: set --api-key or SHOP_SEED_API_KEY")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func orEnv(v, env string) string {
	if v != "" {
		return v
	}
	return os.Getenv(env)
}

func run(ctx context.Context, opts options) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL, 4)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data, err := seed.Demo(time.Now())
	if err != nil {
		return err
	}
	store := seed.Repositories{
		Products: postgres.NewProductRepository(pool),
		Coupons:  postgres.NewCouponRepository(pool),
		Users:    postgres.NewUserRepository(pool),
	}
	if err := seed.Apply(ctx, store, data); err != nil {
		return errors.Wrap(err, "seed demo data")
	}
	slog.Info("upserted demo data",
		slog.Int("products", len(data.Products)),
		slog.Int("coupons", len(data.Coupons)),
		slog.Int("users", len(data.Users)),
	)

	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, &auth.APIKeyInfo{
		ID:      "default-admin",
		KeyHash: auth.HashAPIKey(opts.apiKey, []byte(opts.apiKeyPepper)),
		Name:    "Default admin key",
		Scopes:  []string{auth.ScopeAdmin},
	}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}
	slog.Info("upserted API key", slog.String("id", "default-admin"))

	if opts.jwtSecret == "" {
		slog.Warn("no JWT secret given, skipping demo customer token")
		return nil
	}
	token, expires, err := auth.NewTokenIssuer([]byte(opts.jwtSecret), opts.tokenTTL).
		Issue(seed.DemoUserID, data.Users[0].Email)
	if err != nil {
		return err
	}
	slog.Info("issued demo customer token", slog.String("user_id", seed.DemoUserID), slog.Time("expires", expires))
	fmt.Println(token)
	return nil
}
