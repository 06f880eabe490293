package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Vault    VaultConfig    `mapstructure:"vault"`
	K8s      K8sConfig      `mapstructure:"k8s"`
	Region   RegionConfig   `mapstructure:"region"`
	CI       CIConfig       `mapstructure:"ci"`
	Billing  BillingConfig  `mapstructure:"billing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
	Debug        bool   `mapstructure:"debug"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds the revocation/token cache configuration (C2).
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds the authentication engine configuration (C4).
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"`
	JWTIssuer            string `mapstructure:"jwt_issuer"`
	JWTAudience          string `mapstructure:"jwt_audience"`
	PasswordPepper       string `mapstructure:"password_pepper"`
	AccessTokenTTLSecs   int    `mapstructure:"access_token_ttl_secs"`
	RefreshTokenTTLSecs  int    `mapstructure:"refresh_token_ttl_secs"`
	APITokenCacheTTLSecs int    `mapstructure:"api_token_cache_ttl_secs"`
	AllowPrivateIPs      bool   `mapstructure:"allow_private_ips"`
	SignUpOTPTTLSecs     int    `mapstructure:"sign_up_otp_ttl_secs"`
	IPInfoBaseURL        string `mapstructure:"ip_info_base_url"`
	IPInfoToken          string `mapstructure:"ip_info_token"`
}

// VaultConfig holds the secret key-value store configuration used by the
// secret lifecycle (spec section 4.4.4).
type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
}

// K8sConfig holds default Kubernetes client configuration for the
// first-party regions; BYOC regions carry their own kubeconfig per row.
type K8sConfig struct {
	ConfigPath string `mapstructure:"config_path"`
	InCluster  bool   `mapstructure:"in_cluster"`
}

// RegionConfig holds defaults for the region controller (C8).
// CloudflareAPIToken/CloudflareAPIBase reach the certificate-authority
// endpoint the revocation sweep calls; no cloudflare-go SDK exists
// anywhere in the example pack, so this talks to the CA over plain
// net/http (documented in DESIGN.md).
type RegionConfig struct {
	DisconnectGracePeriodDays int    `mapstructure:"disconnect_grace_period_days"`
	ProbeRetryCount           int    `mapstructure:"probe_retry_count"`
	CertCARateLimitDelayMS    int    `mapstructure:"cert_ca_rate_limit_delay_ms"`
	DefaultCloudProvider      string `mapstructure:"default_cloud_provider"`
	CloudflareAPIToken        string `mapstructure:"cloudflare_api_token"`
	CloudflareAPIBase         string `mapstructure:"cloudflare_api_base"`
}

// CIConfig holds the webhook ingestion pipeline configuration (C9).
// GitHubToken/GitLabToken are the app-level credentials used to fetch
// patr.yml at the commit sha a webhook names; per-repo auth is out of
// scope, matching the teacher's single-tenant Vault token model.
type CIConfig struct {
	GitHubContentType    string `mapstructure:"github_content_type"`
	GitLabContentType    string `mapstructure:"gitlab_content_type"`
	BitbucketContentType string `mapstructure:"bitbucket_content_type"`
	PipelineFileName     string `mapstructure:"pipeline_file_name"`
	GitHubToken          string `mapstructure:"github_token"`
	GitLabToken          string `mapstructure:"gitlab_token"`
	GitLabBaseURL        string `mapstructure:"gitlab_base_url"`
}

// BillingConfig holds Stripe wiring used only to answer "does this
// workspace have a default payment method" for the free-tier smallest-plan
// rule; billing arithmetic itself is out of scope.
type BillingConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/patr")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.idle_timeout", 120)
	viper.SetDefault("server.debug", false)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "patr")
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("auth.jwt_issuer", "https://api.patr.cloud")
	viper.SetDefault("auth.jwt_audience", "patr-api")
	viper.SetDefault("auth.access_token_ttl_secs", 300)
	viper.SetDefault("auth.refresh_token_ttl_secs", 2592000) // 30 days
	viper.SetDefault("auth.api_token_cache_ttl_secs", 28800) // 8 hours
	viper.SetDefault("auth.allow_private_ips", false)
	viper.SetDefault("auth.sign_up_otp_ttl_secs", 900) // 15 minutes
	viper.SetDefault("auth.ip_info_base_url", "https://ipinfo.io")

	viper.SetDefault("vault.address", "http://localhost:8200")
	viper.SetDefault("vault.mount_path", "secret")

	viper.SetDefault("k8s.in_cluster", false)

	viper.SetDefault("region.disconnect_grace_period_days", 7)
	viper.SetDefault("region.probe_retry_count", 1)
	viper.SetDefault("region.cert_ca_rate_limit_delay_ms", 500)
	viper.SetDefault("region.default_cloud_provider", "digitalocean")
	viper.SetDefault("region.cloudflare_api_base", "https://api.cloudflare.com/client/v4")

	viper.SetDefault("ci.github_content_type", "application/json")
	viper.SetDefault("ci.gitlab_content_type", "application/json")
	viper.SetDefault("ci.bitbucket_content_type", "application/json")
	viper.SetDefault("ci.pipeline_file_name", "patr.yml")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Auth.PasswordPepper == "" {
		return fmt.Errorf("password pepper is required")
	}
	return nil
}
