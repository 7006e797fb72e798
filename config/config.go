// Package config loads the portal configuration from YAML, an optional .env
// file and PORTAL_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	portal "github.com/goliatone/go-auth-portal"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PORTAL_"

// Identity backends
const (
	IdentityHTTP   = "http"
	IdentityKratos = "kratos"
	IdentityLocal  = "local"
)

// Draft backends
const (
	DraftsMemory = "memory"
	DraftsRedis  = "redis"
)

type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Routes    RoutesConfig    `yaml:"routes"`
	Identity  IdentityConfig  `yaml:"identity"`
	Drafts    DraftsConfig    `yaml:"drafts"`
	Wizard    WizardConfig    `yaml:"wizard"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	IDP       IDPConfig       `yaml:"idp"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	ViewsDir string `yaml:"views_dir"`
	CSRF     bool   `yaml:"csrf"`
}

type SessionConfig struct {
	CookieName       string        `yaml:"cookie_name"`
	CookieDuration   time.Duration `yaml:"cookie_duration"`
	CookieSecure     bool          `yaml:"cookie_secure"`
	RejectedRouteKey string        `yaml:"rejected_route_key"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

type RoutesConfig struct {
	Home     string `yaml:"home"`
	Login    string `yaml:"login"`
	Logout   string `yaml:"logout"`
	Register string `yaml:"register"`
}

// IdentityConfig selects the identity service the portal talks to.
type IdentityConfig struct {
	Backend   string `yaml:"backend"`
	URL       string `yaml:"url"`
	KratosURL string `yaml:"kratos_url"`
}

type DraftsConfig struct {
	Backend   string        `yaml:"backend"`
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"`
	RedisDB   int           `yaml:"redis_db"`
}

type WizardConfig struct {
	PhoneRegion   string `yaml:"phone_region"`
	MaxImageBytes int64  `yaml:"max_image_bytes"`
}

// RateLimitConfig throttles login attempts per IP. PerMinute <= 0 disables it.
type RateLimitConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

// IDPConfig configures the bundled development identity provider.
type IDPConfig struct {
	Addr       string        `yaml:"addr"`
	DSN        string        `yaml:"dsn"`
	SigningKey string        `yaml:"signing_key"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	HashIDs    bool          `yaml:"hash_ids"`

	// PasswordCost is the bcrypt cost, 0 keeps the provider default.
	PasswordCost int `yaml:"password_cost"`
}

// Defaults returns a configuration that runs the portal against a local
// development identity provider.
func Defaults() *Config {
	s := portal.DefaultSettings()
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
			CSRF: true,
		},
		Session: SessionConfig{
			CookieName:       s.CookieName,
			CookieDuration:   s.CookieDuration,
			RejectedRouteKey: s.RejectedRouteKey,
			RequestTimeout:   s.RequestTimeout,
		},
		Routes: RoutesConfig{
			Home:     s.ProtectedRoot,
			Login:    s.LoginRoute,
			Logout:   s.LogoutRoute,
			Register: s.RegisterRoute,
		},
		Identity: IdentityConfig{
			Backend: IdentityHTTP,
			URL:     "http://localhost:8081",
		},
		Drafts: DraftsConfig{
			Backend: DraftsMemory,
			TTL:     s.DraftTTL,
		},
		Wizard: WizardConfig{
			PhoneRegion:   s.PhoneRegion,
			MaxImageBytes: portal.DefaultMaxProfileImageBytes,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 10,
			Burst:     5,
		},
		IDP: IDPConfig{
			Addr:     ":8081",
			DSN:      "file:portal-idp.db?cache=shared",
			Issuer:   "go-auth-portal-idp",
			Audience: "go-auth-portal",
			TokenTTL: 24 * time.Hour,
		},
	}
}

// Load builds the configuration. path may be empty, envFile may name a
// missing file. Both are optional.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from PORTAL_* variables found with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ADDR":               &c.Server.Addr,
		"VIEWS_DIR":          &c.Server.ViewsDir,
		"COOKIE_NAME":        &c.Session.CookieName,
		"IDENTITY_BACKEND":   &c.Identity.Backend,
		"IDENTITY_URL":       &c.Identity.URL,
		"KRATOS_URL":         &c.Identity.KratosURL,
		"DRAFTS_BACKEND":     &c.Drafts.Backend,
		"REDIS_ADDR":         &c.Drafts.RedisAddr,
		"PHONE_REGION":       &c.Wizard.PhoneRegion,
		"IDP_ADDR":           &c.IDP.Addr,
		"IDP_DSN":            &c.IDP.DSN,
		"IDP_SIGNING_KEY":    &c.IDP.SigningKey,
		"IDP_ISSUER":         &c.IDP.Issuer,
		"IDP_AUDIENCE":       &c.IDP.Audience,
		"REJECTED_ROUTE_KEY": &c.Session.RejectedRouteKey,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"DEBUG":         &c.Debug,
		"CSRF":          &c.Server.CSRF,
		"COOKIE_SECURE": &c.Session.CookieSecure,
		"IDP_HASH_IDS":  &c.IDP.HashIDs,
	}
	for key, dst := range bools {
		if v, ok := lookup(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"REQUEST_TIMEOUT": &c.Session.RequestTimeout,
		"COOKIE_DURATION": &c.Session.CookieDuration,
		"DRAFT_TTL":       &c.Drafts.TTL,
		"IDP_TOKEN_TTL":   &c.IDP.TokenTTL,
	}
	for key, dst := range durations {
		if v, ok := lookup(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	return nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server),
		validation.Field(&c.Session),
		validation.Field(&c.Routes),
		validation.Field(&c.Identity),
		validation.Field(&c.Drafts),
	)
}

func (s ServerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.Required),
	)
}

func (s SessionConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.CookieName, validation.Required),
		validation.Field(&s.CookieDuration, validation.Required),
		validation.Field(&s.RejectedRouteKey, validation.Required),
		validation.Field(&s.RequestTimeout, validation.Required),
	)
}

func (r RoutesConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Home, validation.Required, validation.By(localPath)),
		validation.Field(&r.Login, validation.Required, validation.By(localPath)),
		validation.Field(&r.Logout, validation.Required, validation.By(localPath)),
		validation.Field(&r.Register, validation.Required, validation.By(localPath)),
	)
}

func (i IdentityConfig) Validate() error {
	return validation.ValidateStruct(&i,
		validation.Field(&i.Backend, validation.Required, validation.In(IdentityHTTP, IdentityKratos, IdentityLocal)),
		validation.Field(&i.URL, requiredWhen(i.Backend == IdentityHTTP)...),
		validation.Field(&i.KratosURL, requiredWhen(i.Backend == IdentityKratos)...),
	)
}

func (d DraftsConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Backend, validation.Required, validation.In(DraftsMemory, DraftsRedis)),
		validation.Field(&d.RedisAddr, requiredWhen(d.Backend == DraftsRedis)...),
	)
}

func requiredWhen(cond bool) []validation.Rule {
	if cond {
		return []validation.Rule{validation.Required}
	}
	return nil
}

func localPath(value interface{}) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "/") {
		return errors.New("must start with /")
	}
	return nil
}
