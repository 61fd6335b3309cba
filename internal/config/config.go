package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultListenAddr    = ":3000"
	DefaultBexioAPIBase  = "https://api.bexio.com/2.0"
	DefaultBexioAuthURL  = "https://auth.bexio.com/realms/bexio/protocol/openid-connect/auth"
	DefaultBexioTokenURL = "https://auth.bexio.com/realms/bexio/protocol/openid-connect/token"
	DefaultSessionCookie = "softr_session"
	DefaultCacheTTL      = 30 * time.Second
)

type MySQLConfig struct {
	Dsn             string `mapstructure:"dsn"`
	ReplicaDsn      string `mapstructure:"replicaDsn"`
	TablePrefix     string `mapstructure:"tablePrefix"`
	MaxIdleConns    int    `mapstructure:"maxIdleConns"`
	MaxOpenConns    int    `mapstructure:"maxOpenConns"`
	ConnMaxIdleTime int    `mapstructure:"connMaxIdleTime"`
	ConnMaxLifetime int    `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	URL         string `mapstructure:"url"`
	PoolSize    int    `mapstructure:"poolSize"`
	ClusterMode bool   `mapstructure:"clusterMode"`
}

type BexioConfig struct {
	ClientID     string   `mapstructure:"clientID"`
	ClientSecret string   `mapstructure:"clientSecret"`
	APIBase      string   `mapstructure:"apiBase"`
	AuthURL      string   `mapstructure:"authURL"`
	TokenURL     string   `mapstructure:"tokenURL"`
	Scopes       []string `mapstructure:"scopes"`
}

type SoftrConfig struct {
	Origin           string `mapstructure:"origin"`           // allowed CORS origin of the Softr app
	SessionBackend   string `mapstructure:"sessionBackend"`   // "jwt" or "softr"
	SessionSecret    string `mapstructure:"sessionSecret"`    // HS256 secret for the jwt backend
	SessionVerifyURL string `mapstructure:"sessionVerifyURL"` // verify endpoint for the softr backend
	SessionCookie    string `mapstructure:"sessionCookie"`
	APIKey           string `mapstructure:"apiKey"`
}

type CryptoConfig struct {
	Backend   string `mapstructure:"backend"` // "none" or "aes"
	MasterKey string `mapstructure:"masterKey"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type MailConfig struct {
	Backend  string     `mapstructure:"backend"` // empty disables operator alerts
	Operator string     `mapstructure:"operator"`
	SMTP     SMTPConfig `mapstructure:"smtp"`
}

type Config struct {
	Debug        bool         `mapstructure:"debug"`
	BaseURL      string       `mapstructure:"baseURL"`
	ListenAddr   string       `mapstructure:"listenAddr"`
	AllowOrigins []string     `mapstructure:"allowOrigins"`
	MySQL        MySQLConfig  `mapstructure:"mysql"`
	Redis        RedisConfig  `mapstructure:"redis"`
	Bexio        BexioConfig  `mapstructure:"bexio"`
	Softr        SoftrConfig  `mapstructure:"softr"`
	Crypto       CryptoConfig `mapstructure:"crypto"`
	Cache        CacheConfig  `mapstructure:"cache"`
	Mail         MailConfig   `mapstructure:"mail"`
}

func (c *Config) Sanitize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Bexio.APIBase == "" {
		c.Bexio.APIBase = DefaultBexioAPIBase
	}
	if c.Bexio.AuthURL == "" {
		c.Bexio.AuthURL = DefaultBexioAuthURL
	}
	if c.Bexio.TokenURL == "" {
		c.Bexio.TokenURL = DefaultBexioTokenURL
	}
	if c.Softr.SessionCookie == "" {
		c.Softr.SessionCookie = DefaultSessionCookie
	}
	if c.Softr.SessionBackend == "" {
		c.Softr.SessionBackend = "jwt"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if len(c.AllowOrigins) == 0 && c.Softr.Origin != "" {
		c.AllowOrigins = []string{c.Softr.Origin}
	}
	if c.Bexio.ClientID == "" || c.Bexio.ClientSecret == "" {
		return errors.New("bexio client credentials are required")
	}
	return nil
}

func LoadConfig(filename string) (*Config, error) {
	viper.SetConfigFile(filename)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Sanitize(); err != nil {
		return nil, err
	}
	return &config, nil
}
