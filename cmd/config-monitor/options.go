package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kart-io/logger/option"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/webhooks"
)

const (
	appName   = "config-monitor"
	envPrefix = "CONFIG_MONITOR"

	storeDriverNone     = ""
	storeDriverSQLite   = "sqlite3"
	storeDriverPostgres = "postgres"
)

type HTTPOptions struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreOptions struct {
	Driver      string        `mapstructure:"driver"`
	DSN         string        `mapstructure:"dsn"`
	Migrate     bool          `mapstructure:"migrate"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
	Debug       bool          `mapstructure:"debug"`
}

// BusOptions lists the publisher kinds to fan out to. Per-kind settings live
// under bus.<kind> and are handed to the transport registry as-is.
type BusOptions struct {
	Kinds []string `mapstructure:"kinds"`
}

type OutboxOptions struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type BurstOptions struct {
	Mode       string        `mapstructure:"mode"`
	Window     time.Duration `mapstructure:"window"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type WebhookOptions struct {
	Secrets           map[string]string `mapstructure:"secrets"`
	RequireDeliveryID bool              `mapstructure:"require_delivery_id"`
	MaxAttempts       int               `mapstructure:"max_attempts"`
	Burst             BurstOptions      `mapstructure:"burst"`
}

// Options is the binary configuration. The monitor section is read
// separately and resolved through the core config provider.
type Options struct {
	HTTP     HTTPOptions       `mapstructure:"http"`
	Store    StoreOptions      `mapstructure:"store"`
	Bus      BusOptions        `mapstructure:"bus"`
	Outbox   OutboxOptions     `mapstructure:"outbox"`
	Webhooks WebhookOptions    `mapstructure:"webhooks"`
	Log      *option.LogOption `mapstructure:"log"`
}

func DefaultOptions() Options {
	return Options{
		HTTP: HTTPOptions{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreOptions{
			Migrate:     true,
			PingTimeout: 5 * time.Second,
		},
		Bus: BusOptions{Kinds: []string{"log"}},
		Outbox: OutboxOptions{
			Interval: 5 * time.Second,
		},
		Webhooks: WebhookOptions{
			Secrets: map[string]string{},
			Burst:   BurstOptions{Mode: string(webhooks.BurstModeNone)},
		},
		Log: option.DefaultLogOption(),
	}
}

func (o Options) Validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Store.Driver)) {
	case storeDriverNone, storeDriverSQLite, storeDriverPostgres:
	default:
		return fmt.Errorf("store.driver must be one of sqlite3, postgres, got %q", o.Store.Driver)
	}
	if o.Store.Driver != storeDriverNone && strings.TrimSpace(o.Store.DSN) == "" {
		return fmt.Errorf("store.dsn is required when store.driver is set")
	}
	if strings.TrimSpace(o.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr is required")
	}
	if len(o.Bus.Kinds) == 0 {
		return fmt.Errorf("bus.kinds requires at least one publisher kind")
	}
	if o.Outbox.Enabled && o.Outbox.Interval <= 0 {
		return fmt.Errorf("outbox.interval must be positive")
	}
	switch webhooks.BurstMode(o.Webhooks.Burst.Mode) {
	case "", webhooks.BurstModeNone, webhooks.BurstModeCoalesce, webhooks.BurstModeDebounce:
	default:
		return fmt.Errorf("webhooks.burst.mode %q is not supported", o.Webhooks.Burst.Mode)
	}
	return nil
}

// flagBinding maps a CLI flag onto its viper key.
type flagBinding struct {
	flag string
	key  string
}

var flagBindings = []flagBinding{
	{flag: "http-addr", key: "http.addr"},
	{flag: "store-driver", key: "store.driver"},
	{flag: "store-dsn", key: "store.dsn"},
	{flag: "store-migrate", key: "store.migrate"},
	{flag: "bus-kinds", key: "bus.kinds"},
	{flag: "rest-base-url", key: "bus.rest.base_url"},
	{flag: "redis-addr", key: "bus.redis.addr"},
	{flag: "outbox", key: "outbox.enabled"},
	{flag: "outbox-interval", key: "outbox.interval"},
	{flag: "burst-mode", key: "webhooks.burst.mode"},
	{flag: "burst-window", key: "webhooks.burst.window"},
	{flag: "context-id", key: "monitor.context_id"},
	{flag: "endpoint-path", key: "monitor.endpoint.path"},
	{flag: "log-level", key: "log.level"},
	{flag: "log-format", key: "log.format"},
	{flag: "log-engine", key: "log.engine"},
}

// addFlags registers the flags listed in flagBindings.
func addFlags(fs *pflag.FlagSet) {
	defaults := DefaultOptions()
	fs.String("http-addr", defaults.HTTP.Addr, "Address the monitor endpoint listens on")
	fs.String("store-driver", defaults.Store.Driver, "Persistence driver (sqlite3|postgres), empty for in-memory")
	fs.String("store-dsn", defaults.Store.DSN, "Persistence DSN")
	fs.Bool("store-migrate", defaults.Store.Migrate, "Apply embedded migrations on start")
	fs.StringSlice("bus-kinds", defaults.Bus.Kinds, "Refresh publisher kinds (log|rest|redis)")
	fs.String("rest-base-url", "", "Base url of the config server bus endpoint")
	fs.String("redis-addr", "", "Redis address for the redis bus publisher")
	fs.Bool("outbox", defaults.Outbox.Enabled, "Route refresh signals through the outbox relay")
	fs.Duration("outbox-interval", defaults.Outbox.Interval, "Outbox relay polling interval")
	fs.String("burst-mode", defaults.Webhooks.Burst.Mode, "Webhook burst control (none|coalesce|debounce)")
	fs.Duration("burst-window", 0, "Webhook burst window")
	fs.String("context-id", "", "Process context id, generated when empty")
	fs.String("endpoint-path", "", "Prefix for the monitor route")
	fs.String("log-level", defaults.Log.Level, "Log level (DEBUG|INFO|WARN|ERROR)")
	fs.String("log-format", defaults.Log.Format, "Log format (json|console)")
	fs.String("log-engine", defaults.Log.Engine, "Logging engine (slog|zap)")
}

func newViper() *viper.Viper {
	v := viper.New()
	defaults := core.DefaultConfig()
	v.SetDefault("monitor.service_name", defaults.ServiceName)
	v.SetDefault("monitor.origin", defaults.Origin)
	v.SetDefault("monitor.context_id", defaults.ContextID)
	v.SetDefault("monitor.endpoint.path", defaults.Endpoint.Path)
	v.SetDefault("http.shutdown_timeout", DefaultOptions().HTTP.ShutdownTimeout)
	v.SetDefault("store.ping_timeout", DefaultOptions().Store.PingTimeout)
	return v
}

// loadOptions reads the config file, environment and flags into Options.
// Precedence is flag > env > file > default.
func loadOptions(cmd *cobra.Command, v *viper.Viper) (Options, error) {
	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(appName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+appName))
		}
		v.AddConfigPath("/etc/" + appName)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return Options{}, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, binding := range flagBindings {
		flag := cmd.Flags().Lookup(binding.flag)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(binding.key, flag); err != nil {
			return Options{}, fmt.Errorf("bind flag %s: %w", binding.flag, err)
		}
	}

	opts := DefaultOptions()
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("decode config: %w", err)
	}
	opts.Store.Driver = strings.ToLower(strings.TrimSpace(opts.Store.Driver))
	if opts.Log == nil {
		opts.Log = option.DefaultLogOption()
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// monitorConfigLoader feeds the monitor section to the cfgx provider. Keys
// are read one by one so env and flag overrides apply to nested values.
func monitorConfigLoader(v *viper.Viper) core.RawConfigLoader {
	return core.RawConfigLoaderFunc(func(_ context.Context) (map[string]any, error) {
		raw := map[string]any{
			"service_name": v.GetString("monitor.service_name"),
			"origin":       v.GetString("monitor.origin"),
			"endpoint": map[string]any{
				"path": v.GetString("monitor.endpoint.path"),
			},
		}
		if contextID := strings.TrimSpace(v.GetString("monitor.context_id")); contextID != "" {
			raw["context_id"] = contextID
		}
		return raw, nil
	})
}

// busConfigs collects bus.<kind>.* settings for each configured kind.
func busConfigs(v *viper.Viper, kinds []string) map[string]map[string]any {
	configs := make(map[string]map[string]any, len(kinds))
	for _, kind := range kinds {
		kind = strings.ToLower(strings.TrimSpace(kind))
		if kind == "" {
			continue
		}
		prefix := "bus." + kind + "."
		values := map[string]any{}
		for _, key := range v.AllKeys() {
			if !strings.HasPrefix(key, prefix) {
				continue
			}
			value := v.Get(key)
			if value == nil {
				continue
			}
			if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
				continue
			}
			values[strings.TrimPrefix(key, prefix)] = value
		}
		configs[kind] = values
	}
	return configs
}
