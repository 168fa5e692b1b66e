package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"

	"github.com/tendant/edu-idm/pkg/redisclient"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type ServerConfig struct {
	BaseURL               string `env:"IDM_BASE_URL" env-default:"http://localhost:4000"`
	LoginURL              string `env:"IDM_LOGIN_URL" env-default:"/account/login"`
	PostLogoutRedirectURL string `env:"IDM_POST_LOGOUT_REDIRECT_URL" env-default:"/"`
	SessionSecret         string `env:"SESSION_SECRET" env-default:""`
	SessionLifetime       string `env:"SESSION_LIFETIME" env-default:"8h"`
	CookieSecure          bool   `env:"COOKIE_SECURE" env-default:"true"`
	ClientsFile           string `env:"IDM_CLIENTS_FILE" env-default:"clients.json"`
	LogFormat             string `env:"LOG_FORMAT" env-default:"text"`
	LogLevel              string `env:"LOG_LEVEL" env-default:"info"`
}

type TokenConfig struct {
	Issuer               string `env:"TOKEN_ISSUER" env-default:""`
	PrivateKeyFile       string `env:"JWKS_PRIVATE_KEY_FILE" env-default:"jwt-private.pem"`
	AccessTokenLifetime  string `env:"ACCESS_TOKEN_LIFETIME" env-default:"1h"`
	IDTokenLifetime      string `env:"ID_TOKEN_LIFETIME" env-default:"20m"`
	RefreshTokenLifetime string `env:"REFRESH_TOKEN_LIFETIME" env-default:"336h"`
	CodeLifetime         string `env:"AUTHORIZATION_CODE_LIFETIME" env-default:"5m"`
	DeviceCodeLifetime   string `env:"DEVICE_CODE_LIFETIME" env-default:"10m"`
	Scopes               string `env:"SUPPORTED_SCOPES" env-default:"openid,profile,email,roles,permissions,offline_access"`
}

type IdGovUaConfig struct {
	Scheme         string `env:"IDGOVUA_SCHEME" env-default:"idgovua"`
	DisplayName    string `env:"IDGOVUA_DISPLAY_NAME" env-default:"ID.GOV.UA"`
	ClientID       string `env:"IDGOVUA_CLIENT_ID" env-default:""`
	ClientSecret   string `env:"IDGOVUA_CLIENT_SECRET" env-default:""`
	AuthURL        string `env:"IDGOVUA_AUTH_URL" env-default:"https://id.gov.ua/"`
	TokenURL       string `env:"IDGOVUA_TOKEN_URL" env-default:"https://id.gov.ua/get-access-token"`
	AuthType       string `env:"IDGOVUA_AUTH_TYPE" env-default:"dig_sign,bank_id,diia_id"`
	CertificateURL string `env:"IDGOVUA_CERTIFICATE_URL" env-default:""`
	UserInfoURL    string `env:"IDGOVUA_USERINFO_URL" env-default:"https://id.gov.ua/get-user-info"`
	FieldsKey      string `env:"IDGOVUA_FIELDS_KEY" env-default:"fields"`
	FieldsValue    string `env:"IDGOVUA_FIELDS_VALUE" env-default:"givenname,middlename,lastname,email,drfocode,edrpoucode"`
	// PrivateKeyFile selects the local key context; DecryptURL selects a remote one
	PrivateKeyFile string `env:"IDGOVUA_PRIVATE_KEY_FILE" env-default:""`
	DecryptURL     string `env:"IDGOVUA_DECRYPT_URL" env-default:""`
	TrustFile      string `env:"IDGOVUA_TRUST_FILE" env-default:""`
	DefaultRole    string `env:"IDGOVUA_DEFAULT_ROLE" env-default:"external"`
	StateTTL       string `env:"IDGOVUA_STATE_TTL" env-default:"10m"`
}

// Enabled reports whether the external scheme has client credentials
func (c IdGovUaConfig) Enabled() bool {
	return c.ClientID != ""
}

type StoreConfig struct {
	Kind        string `env:"IDM_STORE" env-default:"memory"`
	Host        string `env:"IDM_PG_HOST" env-default:"localhost"`
	Port        uint16 `env:"IDM_PG_PORT" env-default:"5432"`
	Database    string `env:"IDM_PG_DATABASE" env-default:"idm_db"`
	User        string `env:"IDM_PG_USER" env-default:"idm"`
	Password    string `env:"IDM_PG_PASSWORD" env-default:"pwd"`
	RedisPrefix string `env:"REDIS_PREFIX" env-default:"edu-idm:"`
	Redis       redisclient.Config
}

// DSN is the pgx connection string for the configured database
func (s StoreConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", s.User, s.Password, s.Host, s.Port, s.Database)
}

type LoginConfig struct {
	MaxFailedAttempts int    `env:"LOGIN_MAX_FAILED_ATTEMPTS" env-default:"5"`
	LockoutDuration   string `env:"LOGIN_LOCKOUT_DURATION" env-default:"15m"`
}

// PasswordComplexityConfig field names match login.PasswordPolicy for copier
type PasswordComplexityConfig struct {
	MinLength           int    `env:"PASSWORD_COMPLEXITY_REQUIRED_LENGTH" env-default:"8"`
	RequireUppercase    bool   `env:"PASSWORD_COMPLEXITY_REQUIRE_UPPERCASE" env-default:"true"`
	RequireLowercase    bool   `env:"PASSWORD_COMPLEXITY_REQUIRE_LOWERCASE" env-default:"true"`
	RequireDigit        bool   `env:"PASSWORD_COMPLEXITY_REQUIRE_DIGIT" env-default:"true"`
	RequireSpecialChar  bool   `env:"PASSWORD_COMPLEXITY_REQUIRE_NON_ALPHANUMERIC" env-default:"false"`
	DisallowCommonPwds  bool   `env:"PASSWORD_COMPLEXITY_DISALLOW_COMMON" env-default:"true"`
	MaxRepeatedChars    int    `env:"PASSWORD_COMPLEXITY_MAX_REPEATED" env-default:"3"`
	CommonPasswordsPath string `env:"PASSWORD_COMPLEXITY_COMMON_FILE" env-default:""`
}

// RateLimitConfig throttles the credential endpoints per client IP
type RateLimitConfig struct {
	Enabled   bool    `env:"RATE_LIMIT_ENABLED" env-default:"true"`
	Burst     int     `env:"RATE_LIMIT_BURST" env-default:"20"`
	PerMinute float64 `env:"RATE_LIMIT_PER_MINUTE" env-default:"30"`
}

type Config struct {
	AppConfig       app.AppConfig
	ServerConfig    ServerConfig
	TokenConfig     TokenConfig
	IdGovUaConfig   IdGovUaConfig
	StoreConfig     StoreConfig
	LoginConfig     LoginConfig
	PasswordConfig  PasswordComplexityConfig
	RateLimitConfig RateLimitConfig
}

// Load reads envFile when it exists, then the environment
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("failed to load %s: %w", envFile, err)
			}
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	if cfg.TokenConfig.Issuer == "" {
		cfg.TokenConfig.Issuer = strings.TrimRight(cfg.ServerConfig.BaseURL, "/")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StoreConfig.Kind {
	case StoreMemory, StorePostgres:
	default:
		return fmt.Errorf("unknown store kind %q", c.StoreConfig.Kind)
	}
	if len(c.ServerConfig.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}
	if !c.IdGovUaConfig.Enabled() {
		return nil
	}
	if c.IdGovUaConfig.PrivateKeyFile == "" && c.IdGovUaConfig.DecryptURL == "" {
		return fmt.Errorf("id.gov.ua requires IDGOVUA_PRIVATE_KEY_FILE or IDGOVUA_DECRYPT_URL")
	}
	if c.IdGovUaConfig.CertificateURL == "" {
		return fmt.Errorf("id.gov.ua requires IDGOVUA_CERTIFICATE_URL")
	}
	return nil
}

// ParseDuration parses value, falling back to def when it is empty or malformed
func ParseDuration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// SplitList splits a comma separated value, dropping blanks
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
