// Command seed-db prepares a fresh database for local development: it runs
// migrations and upserts a set of API keys, one per demo user.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/payflow/internal/repository"
)

const upsertAPIKeySQL = `
INSERT INTO api_keys (id, key_hash, name, user_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, name = EXCLUDED.name, user_id = EXCLUDED.user_id`

type seedKey struct {
	id     string
	name   string
	userID string
	key    string
}

func main() {
	var (
		databaseURL  string
		apiKeys      string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKeys, "api-keys", "", "comma-separated user:key pairs to seed (or PAYFLOW_SEED_API_KEYS env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PAYFLOW_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKeys == "" {
		apiKeys = os.Getenv("PAYFLOW_SEED_API_KEYS")
	}
	if apiKeys == "" {
		slog.Error("API keys are required: set --api-keys or PAYFLOW_SEED_API_KEYS, e.g. alice:secret1,bob:secret2")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PAYFLOW_API_KEY_PEPPER")
	}

	keys, err := parseSeedKeys(apiKeys)
	if err != nil {
		slog.Error("invalid --api-keys", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, keys, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func parseSeedKeys(spec string) ([]seedKey, error) {
	var keys []seedKey
	for _, pair := range strings.Split(spec, ",") {
		user, key, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || user == "" || key == "" {
			return nil, errors.Errorf("malformed pair %q, want user:key", pair)
		}
		keys = append(keys, seedKey{
			id:     "seed-" + user,
			name:   "Seeded key for " + user,
			userID: user,
			key:    key,
		})
	}
	return keys, nil
}

func run(ctx context.Context, databaseURL string, keys []seedKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedAPIKeys(ctx, pool, keys, pepper); err != nil {
		return errors.Wrap(err, "seed api keys")
	}

	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, keys []seedKey, pepper string) error {
	slog.Info("upserting api keys", slog.Int("count", len(keys)))

	g, ctx := errgroup.WithContext(ctx)
	for _, k := range keys {
		g.Go(func() error {
			mac := hmac.New(sha256.New, []byte(pepper))
			mac.Write([]byte(k.key))
			hash := hex.EncodeToString(mac.Sum(nil))

			if _, err := pool.Exec(ctx, upsertAPIKeySQL, k.id, hash, k.name, k.userID); err != nil {
				return errors.Wrapf(err, "upsert api key %s", k.id)
			}

			slog.Info("upserted api key", slog.String("id", k.id), slog.String("user", k.userID))
			return nil
		})
	}
	return g.Wait()
}
