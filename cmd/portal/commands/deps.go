package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	portal "github.com/goliatone/go-auth-portal"
	"github.com/goliatone/go-auth-portal/config"
	"github.com/goliatone/go-auth-portal/identity"
	"github.com/goliatone/go-auth-portal/idp"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

// newIDPService opens and migrates the provider database. The caller closes
// the returned db.
func (c *cli) newIDPService(ctx context.Context) (*idp.Service, *bun.DB, error) {
	logger := c.log("idp")
	cfg := c.cfg.IDP

	db, err := idp.OpenDB(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := idp.Migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	key := cfg.SigningKey
	if key == "" {
		key, err = randomKey()
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Warn("no signing key configured, tokens will not survive a restart")
	}

	var audience []string
	if cfg.Audience != "" {
		audience = []string{cfg.Audience}
	}
	tokens := idp.NewTokenService([]byte(key), cfg.TokenTTL, cfg.Issuer, audience, logger)

	opts := []idp.Option{
		idp.WithHashIDs(cfg.HashIDs),
		idp.WithLogger(logger),
	}
	if cfg.PasswordCost > 0 {
		opts = append(opts, idp.WithPasswordCost(cfg.PasswordCost))
	}
	return idp.NewService(idp.NewAccountsRepository(db), tokens, opts...), db, nil
}

// newIdentity returns the identity API selected by backend. The returned func
// releases what the backend holds open.
func (c *cli) newIdentity(ctx context.Context, backend string) (portal.IdentityAPI, func(), error) {
	switch backend {
	case config.IdentityKratos:
		return identity.NewKratosClient(c.cfg.Identity.KratosURL, nil, c.log("kratos")), func() {}, nil
	case config.IdentityLocal:
		svc, db, err := c.newIDPService(ctx)
		if err != nil {
			return nil, nil, err
		}
		return svc, func() { _ = db.Close() }, nil
	case config.IdentityHTTP, "":
		return identity.NewHTTPClient(c.cfg.Identity.URL, identity.WithLogger(c.log("identity"))), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown identity backend %q", backend)
	}
}

// newDraftStore returns the configured registration draft store. The memory
// store needs Sweep calls, which serve schedules.
func (c *cli) newDraftStore(ctx context.Context) (portal.DraftStore, func(), error) {
	cfg := c.cfg.Drafts
	if cfg.Backend != config.DraftsRedis {
		return portal.NewMemoryDraftStore(cfg.TTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return portal.NewRedisDraftStore(client, cfg.TTL), func() { _ = client.Close() }, nil
}

func randomKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate signing key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
