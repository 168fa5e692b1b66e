package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jinzhu/copier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"golang.org/x/oauth2"

	"github.com/tendant/edu-idm/pkg/claims"
	"github.com/tendant/edu-idm/pkg/config"
	"github.com/tendant/edu-idm/pkg/consent"
	"github.com/tendant/edu-idm/pkg/externalidentity"
	"github.com/tendant/edu-idm/pkg/externallogin"
	externalloginapi "github.com/tendant/edu-idm/pkg/externallogin/api"
	"github.com/tendant/edu-idm/pkg/idgovua"
	"github.com/tendant/edu-idm/pkg/jwks"
	"github.com/tendant/edu-idm/pkg/login"
	loginapi "github.com/tendant/edu-idm/pkg/login/api"
	"github.com/tendant/edu-idm/pkg/metrics"
	"github.com/tendant/edu-idm/pkg/oauth2client"
	"github.com/tendant/edu-idm/pkg/oidc"
	oidcapi "github.com/tendant/edu-idm/pkg/oidc/api"
	"github.com/tendant/edu-idm/pkg/ratelimit"
	"github.com/tendant/edu-idm/pkg/redisclient"
	"github.com/tendant/edu-idm/pkg/role"
	roleapi "github.com/tendant/edu-idm/pkg/role/api"
	"github.com/tendant/edu-idm/pkg/session"
	"github.com/tendant/edu-idm/pkg/tokengenerator"
	"github.com/tendant/edu-idm/pkg/user"
	"github.com/tendant/edu-idm/pkg/wellknown"
)

type repositories struct {
	users   user.UserRepository
	consent consent.Repository
	roles   role.RoleRepository
	grants  oidc.GrantStore
	states  externalidentity.StateStore
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.ServerConfig))

	ctx := context.Background()
	repos, cleanup, err := openRepositories(ctx, cfg.StoreConfig)
	if err != nil {
		slog.Error("Failed to open stores", "store", cfg.StoreConfig.Kind, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	m := metrics.New(prometheus.DefaultRegisterer)

	clientRepo, err := oauth2client.NewFileOAuth2ClientRepository(cfg.ServerConfig.ClientsFile)
	if err != nil {
		slog.Error("Failed to load client applications", "path", cfg.ServerConfig.ClientsFile, "error", err)
		os.Exit(1)
	}
	clients := oauth2client.NewClientService(clientRepo)

	hasher := login.NewVersionedHasher()
	var policy login.PasswordPolicy
	if err := copier.Copy(&policy, &cfg.PasswordConfig); err != nil {
		slog.Error("Failed to read password policy", "error", err)
		os.Exit(1)
	}
	users := user.NewUserService(repos.users,
		user.WithPasswordHasher(hasher),
		user.WithPasswordPolicy(login.NewDefaultPasswordPolicyChecker(&policy, nil)),
	)
	logins := login.NewLoginService(repos.users, users,
		login.WithPasswordHasher(hasher),
		login.WithMaxFailedAttempts(cfg.LoginConfig.MaxFailedAttempts),
		login.WithLockoutDuration(config.ParseDuration(cfg.LoginConfig.LockoutDuration, login.DefaultLockoutDuration)),
	)
	roles := role.NewRoleService(repos.roles)
	ledger := consent.NewLedger(repos.consent)
	builder := claims.NewBuilder(claims.NewPermissionsEnricher(roles))

	sessions, err := session.NewManager([]byte(cfg.ServerConfig.SessionSecret),
		session.WithSecureCookie(cfg.ServerConfig.CookieSecure),
		session.WithLifetime(config.ParseDuration(cfg.ServerConfig.SessionLifetime, 8*time.Hour)),
	)
	if err != nil {
		slog.Error("Failed to create session manager", "error", err)
		os.Exit(1)
	}

	privateKey, err := jwks.LoadOrGenerateKey(cfg.TokenConfig.PrivateKeyFile)
	if err != nil {
		slog.Error("Failed to load signing key", "path", cfg.TokenConfig.PrivateKeyFile, "error", err)
		os.Exit(1)
	}
	keys, err := jwks.NewJWKSServiceWithKey(privateKey)
	if err != nil {
		slog.Error("Failed to create key set", "error", err)
		os.Exit(1)
	}
	tokens := tokengenerator.NewRSATokenGenerator(keys, cfg.TokenConfig.Issuer,
		tokengenerator.WithAccessTokenLifetime(config.ParseDuration(cfg.TokenConfig.AccessTokenLifetime, time.Hour)),
		tokengenerator.WithIDTokenLifetime(config.ParseDuration(cfg.TokenConfig.IDTokenLifetime, 20*time.Minute)),
	)

	registry := externalidentity.NewRegistry()
	var external *externalloginapi.Handle
	if cfg.IdGovUaConfig.Enabled() {
		// the server must not start serving with an uninitialized crypto context
		channel, err := newChannel(cfg.IdGovUaConfig, m)
		if err != nil {
			slog.Error("Failed to initialize id.gov.ua channel", "error", err)
			os.Exit(1)
		}
		registry.Register(newProvider(cfg.IdGovUaConfig, cfg.ServerConfig.BaseURL))
		handshake := externalidentity.NewHandshake(registry, repos.states,
			externalidentity.WithStateTTL(config.ParseDuration(cfg.IdGovUaConfig.StateTTL, 10*time.Minute)))
		service := externallogin.NewService(externalidentity.NewBridge(channel), registry, users,
			externallogin.WithDefaultRole(cfg.IdGovUaConfig.DefaultRole),
			externallogin.WithMetrics(m),
		)
		external = externalloginapi.NewHandle(handshake, service, sessions)
	}

	authorize := oidc.NewAuthorizeFlow(clients, users, ledger, builder, registry, repos.grants,
		oidc.WithCodeLifetime(config.ParseDuration(cfg.TokenConfig.CodeLifetime, oidc.DefaultCodeLifetime)),
		oidc.WithAuthorizeMetrics(m),
	)
	exchange := oidc.NewTokenExchangeFlow(clients, users, logins, builder, tokens, repos.grants,
		oidc.WithRefreshTokenLifetime(config.ParseDuration(cfg.TokenConfig.RefreshTokenLifetime, oidc.DefaultRefreshTokenLifetime)),
		oidc.WithTokenMetrics(m),
	)
	baseURL := strings.TrimRight(cfg.ServerConfig.BaseURL, "/")
	device := oidc.NewDeviceFlow(clients, repos.grants, baseURL+"/connect/verify",
		oidc.WithDeviceCodeLifetime(config.ParseDuration(cfg.TokenConfig.DeviceCodeLifetime, oidc.DefaultDeviceCodeLifetime)))

	connect := oidcapi.NewHandle(sessions, clients, authorize, exchange,
		oidcapi.WithLoginURL(cfg.ServerConfig.LoginURL),
		oidcapi.WithPostLogoutRedirectURL(cfg.ServerConfig.PostLogoutRedirectURL),
		oidcapi.WithDeviceFlow(device),
		oidcapi.WithUserInfo(tokens, users),
	)
	discovery := wellknown.NewHandler(wellknown.Config{
		Issuer: cfg.TokenConfig.Issuer,
		Scopes: config.SplitList(cfg.TokenConfig.Scopes),
	}, keys)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Handle("/metrics", promhttp.Handler())
	server.R.Mount("/.well-known", discovery.Routes())
	server.R.Mount("/api/roles", roleapi.NewHandle(roles, sessions).Routes())
	server.R.Group(func(r chi.Router) {
		if cfg.RateLimitConfig.Enabled {
			r.Use(ratelimit.Middleware(ratelimit.New(cfg.RateLimitConfig.Burst, cfg.RateLimitConfig.PerMinute), ratelimit.ClientIP))
		}
		r.Mount("/connect", connect.Routes())
		r.Mount("/account", loginapi.NewHandle(logins, sessions, registry, loginapi.WithConsentLedger(ledger)).Routes())
		if external != nil {
			r.Mount("/external", external.Routes())
		}
	})
	logRoutes(server.R)

	slog.Info("edu-idm ready", "issuer", cfg.TokenConfig.Issuer, "store", cfg.StoreConfig.Kind, "schemes", registry.Schemes())
	server.Run()
}

func newLogger(cfg config.ServerConfig) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func openRepositories(ctx context.Context, cfg config.StoreConfig) (repositories, func(), error) {
	repos := repositories{}
	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	rdb, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return repos, cleanup, err
	}
	if rdb != nil {
		closers = append(closers, func() { rdb.Close() })
		repos.grants = oidc.NewRedisGrantStore(rdb, cfg.RedisPrefix)
		repos.states = externalidentity.NewRedisStateStore(rdb, cfg.RedisPrefix)
		slog.Info("Using redis for grants and handshake state", "prefix", cfg.RedisPrefix)
	} else {
		repos.grants = oidc.NewInMemoryGrantStore()
		repos.states = externalidentity.NewInMemoryStateStore()
	}

	if cfg.Kind == config.StoreMemory {
		repos.users = user.NewInMemoryUserRepository()
		repos.consent = consent.NewInMemoryRepository()
		repos.roles = role.NewInMemoryRoleRepository()
		return repos, cleanup, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return repos, cleanup, fmt.Errorf("failed to create pool: %w", err)
	}
	closers = append(closers, pool.Close)
	if err := pool.Ping(ctx); err != nil {
		return repos, cleanup, fmt.Errorf("failed to reach database %s on %s:%d: %w", cfg.Database, cfg.Host, cfg.Port, err)
	}
	repos.users = user.NewPostgresUserRepository(pool)
	repos.consent = consent.NewPostgresRepository(pool)
	repos.roles = role.NewPostgresRoleRepository(pool)
	return repos, cleanup, nil
}

func newChannel(cfg config.IdGovUaConfig, m *metrics.Metrics) (*idgovua.Channel, error) {
	var crypto idgovua.CryptoContext
	if cfg.PrivateKeyFile != "" {
		crypto = idgovua.NewKeyContext(cfg.PrivateKeyFile)
	} else {
		crypto = idgovua.NewRemoteContext(cfg.DecryptURL, nil)
	}

	opts := []idgovua.Option{idgovua.WithMetrics(m)}
	if cfg.TrustFile != "" {
		trust, err := idgovua.LoadTrustStore(cfg.TrustFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, idgovua.WithTrustStore(trust))
	}
	return idgovua.NewChannel(idgovua.Config{
		CertificateURL: cfg.CertificateURL,
		UserInfoURL:    cfg.UserInfoURL,
		FieldsKey:      cfg.FieldsKey,
		FieldsValue:    cfg.FieldsValue,
	}, crypto, opts...)
}

func newProvider(cfg config.IdGovUaConfig, baseURL string) *externalidentity.Provider {
	p := &externalidentity.Provider{
		Scheme:      cfg.Scheme,
		DisplayName: cfg.DisplayName,
		OAuth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  strings.TrimRight(baseURL, "/") + externalloginapi.CallbackPath(cfg.Scheme),
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	if cfg.AuthType != "" {
		p.AuthParams = map[string]string{"auth_type": cfg.AuthType}
	}
	return p
}

func logRoutes(r chi.Routes) {
	_ = chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		slog.Debug("Route", "method", method, "path", route)
		return nil
	})
}
