package zmailbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"github.com/spf13/viper"
)

// NotifyMode selects how the server delivers change notifications.
type NotifyMode string

const (
	// NotifyFull keeps a server session and receives every change,
	// starting with a refresh on the first response.
	NotifyFull NotifyMode = "full"
	// NotifyNoSession sends no notifications; folders and tags are
	// fetched directly.
	NotifyNoSession NotifyMode = "nosession"
)

// AuthMode selects how the auth token is presented.
type AuthMode string

const (
	AuthToken   AuthMode = "token"
	AuthJWT     AuthMode = "jwt"
	AuthXOAuth2 AuthMode = "xoauth2"
)

const defaultKeyringService = "zmailbox"

// Options configures a Mailbox and its default transport.
type Options struct {
	// URL is the JSON endpoint, e.g. https://mail.example.com/service/soap.
	URL string `mapstructure:"url" yaml:"url"`

	// Account is the account name, used for logging and XOAUTH2.
	Account string `mapstructure:"account" yaml:"account"`

	// AccountID is the caller's own account id. It qualifies folder ids and
	// tells own mailbox size changes from others.
	AccountID string `mapstructure:"account_id" yaml:"account_id"`

	// TargetAccount routes every request to another account's mailbox.
	TargetAccount string `mapstructure:"target_account" yaml:"target_account"`

	AuthToken string   `mapstructure:"auth_token" yaml:"auth_token"`
	AuthMode  AuthMode `mapstructure:"auth_mode" yaml:"auth_mode"`

	// CredentialKey names the keyring item holding the auth token when
	// AuthToken is empty.
	CredentialKey  string `mapstructure:"credential_key" yaml:"credential_key"`
	KeyringService string `mapstructure:"keyring_service" yaml:"keyring_service"`
	KeyringDir     string `mapstructure:"keyring_dir" yaml:"keyring_dir"`

	Notify               NotifyMode `mapstructure:"notify" yaml:"notify"`
	AlwaysRefreshFolders bool       `mapstructure:"always_refresh_folders" yaml:"always_refresh_folders"`
	NoTagCache           bool       `mapstructure:"no_tag_cache" yaml:"no_tag_cache"`

	SearchCacheSize     int `mapstructure:"search_cache_size" yaml:"search_cache_size"`
	ConvSearchCacheSize int `mapstructure:"conv_search_cache_size" yaml:"conv_search_cache_size"`
	MessageCacheSize    int `mapstructure:"message_cache_size" yaml:"message_cache_size"`
	ContactCacheSize    int `mapstructure:"contact_cache_size" yaml:"contact_cache_size"`

	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func (o Options) withDefaults() Options {
	if o.Notify == "" {
		o.Notify = NotifyFull
	}
	if o.AuthMode == "" {
		o.AuthMode = AuthToken
	}
	if o.SearchCacheSize <= 0 {
		o.SearchCacheSize = DefaultSearchCacheSize
	}
	if o.ConvSearchCacheSize <= 0 {
		o.ConvSearchCacheSize = DefaultConvSearchCacheSize
	}
	if o.MessageCacheSize <= 0 {
		o.MessageCacheSize = DefaultMessageCacheSize
	}
	if o.ContactCacheSize <= 0 {
		o.ContactCacheSize = DefaultContactCacheSize
	}
	if o.KeyringService == "" {
		o.KeyringService = defaultKeyringService
	}
	return o
}

// DefaultConfigPath returns ~/.config/zmailbox/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "zmailbox", "config.yaml")
}

// LoadOptions reads options from the YAML file at path. A missing file is
// not an error. Every key can be overridden from the environment, e.g.
// ZMAILBOX_AUTH_TOKEN.
func LoadOptions(path string) (Options, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("zmailbox")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a default for environment overrides to reach Unmarshal.
	v.SetDefault("url", "")
	v.SetDefault("account", "")
	v.SetDefault("account_id", "")
	v.SetDefault("target_account", "")
	v.SetDefault("auth_token", "")
	v.SetDefault("auth_mode", string(AuthToken))
	v.SetDefault("credential_key", "")
	v.SetDefault("keyring_service", defaultKeyringService)
	v.SetDefault("keyring_dir", "")
	v.SetDefault("notify", string(NotifyFull))
	v.SetDefault("always_refresh_folders", false)
	v.SetDefault("no_tag_cache", false)
	v.SetDefault("search_cache_size", DefaultSearchCacheSize)
	v.SetDefault("conv_search_cache_size", DefaultConvSearchCacheSize)
	v.SetDefault("message_cache_size", DefaultMessageCacheSize)
	v.SetDefault("contact_cache_size", DefaultContactCacheSize)
	v.SetDefault("user_agent", "")
	v.SetDefault("timeout", "0s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return Options{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var o Options
	if err := v.Unmarshal(&o); err != nil {
		return Options{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	switch o.Notify {
	case NotifyFull, NotifyNoSession:
	default:
		return Options{}, fmt.Errorf("parsing config %s: unknown notify mode %q", path, o.Notify)
	}
	switch o.AuthMode {
	case AuthToken, AuthJWT, AuthXOAuth2:
	default:
		return Options{}, fmt.Errorf("parsing config %s: unknown auth mode %q", path, o.AuthMode)
	}
	return o.withDefaults(), nil
}

// OpenKeyring opens the system keyring configured by o.
func OpenKeyring(o Options) (keyring.Keyring, error) {
	o = o.withDefaults()
	dir := o.KeyringDir
	if dir == "" {
		dir = "~/.config/zmailbox/credentials"
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: o.KeyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt(o.KeyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// ResolveCredentials fills o.AuthToken from ring when it is empty and a
// CredentialKey is configured.
func ResolveCredentials(ring keyring.Keyring, o Options) (Options, error) {
	if o.AuthToken != "" || o.CredentialKey == "" {
		return o, nil
	}
	item, err := ring.Get(o.CredentialKey)
	if err != nil {
		return o, fmt.Errorf("getting credential %q: %w", o.CredentialKey, err)
	}
	o.AuthToken = string(item.Data)
	return o, nil
}

// StoreCredentials saves token in ring under key.
func StoreCredentials(ring keyring.Keyring, key, token string) error {
	err := ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(token),
		Label: "zmailbox auth token",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}
