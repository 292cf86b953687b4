package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	CachePath  string `mapstructure:"cache_path"`
	SecretsDir string `mapstructure:"secrets_dir"`
	LogLevel   string `mapstructure:"log_level"`

	System         SystemConfig             `mapstructure:"system"`
	Accounts       []AccountConfig          `mapstructure:"accounts"`
	OAuthProviders map[string]OAuthProvider `mapstructure:"oauth_providers"`
}

// SystemConfig holds engine-wide tuning
type SystemConfig struct {
	BatchSize           int `mapstructure:"batch_size"`
	InitialBatches      int `mapstructure:"initial_batches"`
	SyncDays            int `mapstructure:"sync_days"`
	PoolSize            int `mapstructure:"pool_size"`
	MaxAttempts         int `mapstructure:"max_attempts"`
	TimeoutSeconds      int `mapstructure:"timeout_seconds"`
	PartAttempts        int `mapstructure:"part_attempts"`
	ReconnectIntervalMS int `mapstructure:"reconnect_interval_ms"`
}

// Timeout returns the per-socket timeout
func (s SystemConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// ReconnectInterval returns the minimum spacing between reconnects on one account
func (s SystemConfig) ReconnectInterval() time.Duration {
	return time.Duration(s.ReconnectIntervalMS) * time.Millisecond
}

// AccountConfig holds configuration for a single email account
type AccountConfig struct {
	Name string `mapstructure:"name"`

	IMAP ConnectionConfig `mapstructure:"imap_connection"`
	SMTP ConnectionConfig `mapstructure:"smtp_connection"`

	// Folders maps aliases such as "sent" or "archive" to server folder names
	Folders        map[string]string `mapstructure:"folders"`
	SaveSentCopies bool              `mapstructure:"save_sent_copies"`
}

// ConnectionConfig holds one IMAP or SMTP endpoint with its credentials
type ConnectionConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// SSL selects implicit TLS, TLS selects STARTTLS
	SSL bool `mapstructure:"ssl"`
	TLS bool `mapstructure:"tls"`

	OAuthProvider     string `mapstructure:"oauth_provider"`
	OAuthRefreshToken string `mapstructure:"oauth_refresh_token"`
}

// Address returns host:port
func (c ConnectionConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UsesOAuth reports whether the connection authenticates with XOAUTH2
func (c ConnectionConfig) UsesOAuth() bool {
	return c.OAuthProvider != ""
}

// OAuthProvider holds the endpoints and client credentials of one provider
type OAuthProvider struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	ProfileURL   string   `mapstructure:"profile_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// Identity returns the stable cache identity of the account, independent of its display name
func (a *AccountConfig) Identity() string {
	return fmt.Sprintf("%s@%s", a.IMAP.Username, a.IMAP.Host)
}

// FolderName resolves an alias to a server folder name; unknown aliases are server names
func (a *AccountConfig) FolderName(alias string) string {
	if name, ok := a.Folders[alias]; ok && name != "" {
		return name
	}
	return alias
}

// LoadConfig loads configuration from a settings file with environment overrides.
// When the file lists no accounts, accounts are read from IMAP_* / ACCOUNT_<n>_* variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MAILSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Accounts) == 0 {
		accounts, err := loadAccounts()
		if err != nil {
			return nil, fmt.Errorf("failed to load accounts: %w", err)
		}
		cfg.Accounts = accounts
	}

	cfg.applyDefaults()
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache_path", "/data/mailsync.db")
	v.SetDefault("secrets_dir", "~/.config/mailsync/secrets")
	v.SetDefault("log_level", "info")
	v.SetDefault("system.batch_size", 50)
	v.SetDefault("system.initial_batches", 3)
	v.SetDefault("system.sync_days", 0)
	v.SetDefault("system.pool_size", 10)
	v.SetDefault("system.max_attempts", 10)
	v.SetDefault("system.timeout_seconds", 10)
	v.SetDefault("system.part_attempts", 3)
	v.SetDefault("system.reconnect_interval_ms", 500)
}

// applyDefaults fills in per-account values the settings file may omit
func (c *Config) applyDefaults() {
	if c.OAuthProviders == nil {
		c.OAuthProviders = map[string]OAuthProvider{}
	}
	if _, ok := c.OAuthProviders["gmail"]; !ok {
		c.OAuthProviders["gmail"] = OAuthProvider{
			AuthURL:    "https://accounts.google.com/o/oauth2/auth",
			TokenURL:   "https://accounts.google.com/o/oauth2/token",
			ProfileURL: "https://www.googleapis.com/userinfo/v2/me",
			Scopes:     []string{"https://mail.google.com/", "email", "profile"},
		}
	}

	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.IMAP.Port == 0 {
			acc.IMAP.Port = 993
		}
		if acc.SMTP.Port == 0 {
			acc.SMTP.Port = 587
		}
		if acc.SMTP.Username == "" {
			acc.SMTP.Username = acc.IMAP.Username
		}
		if acc.Folders == nil {
			acc.Folders = map[string]string{}
		}
	}
}

// loadAccounts loads email account configurations from environment variables
func loadAccounts() ([]AccountConfig, error) {
	if hasSingleAccount() {
		account, err := loadAccountWithPrefix("", getEnv("ACCOUNT_NAME", "default"))
		if err != nil {
			return nil, err
		}
		return []AccountConfig{*account}, nil
	}

	// ACCOUNT_1_*, ACCOUNT_2_*, ...
	var accounts []AccountConfig
	for num := 1; ; num++ {
		prefix := fmt.Sprintf("ACCOUNT_%d_", num)
		name := getEnv(prefix+"NAME", "")
		if name == "" {
			break
		}
		account, err := loadAccountWithPrefix(prefix, name)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", num, err)
		}
		accounts = append(accounts, *account)
	}

	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts found in settings or environment variables")
	}
	return accounts, nil
}

// hasSingleAccount checks if single account configuration exists
func hasSingleAccount() bool {
	return getEnv("IMAP_HOST", "") != "" && getEnv("SMTP_HOST", "") != ""
}

func loadAccountWithPrefix(prefix, name string) (*AccountConfig, error) {
	account := &AccountConfig{
		Name: name,
		IMAP: ConnectionConfig{
			Host:              getEnv(prefix+"IMAP_HOST", ""),
			Port:              getEnvInt(prefix+"IMAP_PORT", 993),
			Username:          getEnv(prefix+"IMAP_USERNAME", ""),
			Password:          getEnv(prefix+"IMAP_PASSWORD", ""),
			SSL:               getEnvBool(prefix+"IMAP_SSL", true),
			OAuthProvider:     getEnv(prefix+"OAUTH_PROVIDER", ""),
			OAuthRefreshToken: getEnv(prefix+"OAUTH_REFRESH_TOKEN", ""),
		},
		SMTP: ConnectionConfig{
			Host:              getEnv(prefix+"SMTP_HOST", ""),
			Port:              getEnvInt(prefix+"SMTP_PORT", 587),
			Username:          getEnv(prefix+"SMTP_USERNAME", ""),
			Password:          getEnv(prefix+"SMTP_PASSWORD", ""),
			OAuthProvider:     getEnv(prefix+"OAUTH_PROVIDER", ""),
			OAuthRefreshToken: getEnv(prefix+"OAUTH_REFRESH_TOKEN", ""),
		},
		SaveSentCopies: getEnvBool(prefix+"SAVE_SENT_COPIES", false),
		Folders:        map[string]string{},
	}
	account.SMTP.SSL = account.SMTP.Port == 465
	account.SMTP.TLS = !account.SMTP.SSL

	if account.IMAP.Host == "" || account.SMTP.Host == "" {
		return nil, fmt.Errorf("IMAP_HOST and SMTP_HOST are required")
	}
	if account.IMAP.Username == "" {
		return nil, fmt.Errorf("IMAP_USERNAME is required")
	}

	for _, alias := range []string{"inbox", "sent", "drafts", "archive", "trash", "spam"} {
		if name := getEnv(prefix+"FOLDER_"+strings.ToUpper(alias), ""); name != "" {
			account.Folders[alias] = name
		}
	}
	return account, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetAccountByName finds an account by name
func (c *Config) GetAccountByName(name string) (*AccountConfig, error) {
	for i := range c.Accounts {
		if c.Accounts[i].Name == name {
			return &c.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account not found: %s", name)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.CachePath == "" {
		return fmt.Errorf("cache_path is required")
	}
	if c.System.BatchSize < 1 {
		return fmt.Errorf("system.batch_size must be positive")
	}
	if c.System.PoolSize < 1 {
		return fmt.Errorf("system.pool_size must be positive")
	}
	if c.System.MaxAttempts < 1 || c.System.PartAttempts < 1 {
		return fmt.Errorf("system.max_attempts and system.part_attempts must be positive")
	}
	if c.System.SyncDays < 0 {
		return fmt.Errorf("system.sync_days cannot be negative")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account must be configured")
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i := range c.Accounts {
		acc := &c.Accounts[i]
		if acc.Name == "" {
			return fmt.Errorf("account %d: name is required", i+1)
		}
		if seen[acc.Name] {
			return fmt.Errorf("account %s: duplicate name", acc.Name)
		}
		seen[acc.Name] = true

		if acc.IMAP.Host == "" {
			return fmt.Errorf("account %s: imap host is required", acc.Name)
		}
		if acc.SMTP.Host == "" {
			return fmt.Errorf("account %s: smtp host is required", acc.Name)
		}
		if acc.IMAP.Port < 1 || acc.IMAP.Port > 65535 {
			return fmt.Errorf("account %s: invalid imap port", acc.Name)
		}
		if acc.SMTP.Port < 1 || acc.SMTP.Port > 65535 {
			return fmt.Errorf("account %s: invalid smtp port", acc.Name)
		}
		for _, conn := range []ConnectionConfig{acc.IMAP, acc.SMTP} {
			if conn.UsesOAuth() {
				if _, ok := c.OAuthProviders[conn.OAuthProvider]; !ok {
					return fmt.Errorf("account %s: unknown oauth provider %q", acc.Name, conn.OAuthProvider)
				}
			}
		}
	}

	return nil
}

// AccountNames returns a list of all account names
func (c *Config) AccountNames() []string {
	names := make([]string, len(c.Accounts))
	for i := range c.Accounts {
		names[i] = c.Accounts[i].Name
	}
	return names
}
