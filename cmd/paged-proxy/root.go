package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/paged-client/pkg/client"
	"github.com/Sternrassler/paged-client/pkg/logging"
	"github.com/Sternrassler/paged-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	redisURLFlag        = "redis-url"
	userAgentFlag       = "user-agent"
	logLevelFlag        = "log-level"
	logPrettyFlag       = "log-pretty"
	timeoutFlag         = "timeout"
	maxRetriesFlag      = "max-retries"
	memoryCacheFlag     = "memory-cache-size"
	maxPagesFlag        = "max-pages"
	detectCyclesFlag    = "detect-cycles"
	maxPendingPagesFlag = "max-pending-pages"
	formatFlag          = "format"
	itemsPathFlag       = "items-path"

	defaultUserAgent = "paged-client/0.1.0"
)

// Config is the configuration shared by all commands.
type Config struct {
	RedisURL        string
	UserAgent       string
	LogLevel        logging.LogLevel
	LogPretty       bool
	Timeout         time.Duration
	MaxRetries      int
	MemoryCacheSize int64
	Walk            pagination.Config
	Format          string
	ItemsPath       string
}

// mustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func mustBindPFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

// NewRootCommand builds the command tree. Flags can also be set through
// environment variables prefixed with PAGED, e.g. PAGED_REDIS_URL.
func NewRootCommand() *cobra.Command {
	return newRootCommand(viper.New())
}

func newRootCommand(v *viper.Viper) *cobra.Command {
	v.SetEnvPrefix("PAGED")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:          "paged-proxy",
		Short:        "Dereference chains of linked pages as one record stream",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String(redisURLFlag, "", "Redis address for caching and rate limit state (host:port); empty disables both")
	flags.String(userAgentFlag, defaultUserAgent, "User-Agent sent with every request")
	flags.String(logLevelFlag, string(logging.LevelInfo), "log level (debug, info, warn, error)")
	flags.Bool(logPrettyFlag, false, "human readable log output")
	flags.Duration(timeoutFlag, 30*time.Second, "time to wait for response headers of a page")
	flags.Int(maxRetriesFlag, 2, "retries for network errors, 5xx and 429 responses")
	flags.Int64(memoryCacheFlag, 0, "entries kept in the in-process cache tier (requires Redis)")
	flags.Int(maxPagesFlag, 0, "maximum pages per walk, 0 for no limit")
	flags.Bool(detectCyclesFlag, false, "fail walks that revisit a page")
	flags.Int(maxPendingPagesFlag, 0, "maximum fetched pages waiting for the consumer, 0 for no bound")
	flags.String(formatFlag, "rdf", "page format: rdf (N-Triples/N-Quads) or json")
	flags.String(itemsPathFlag, "items", "gjson path of the records array in JSON pages")

	for _, name := range []string{
		redisURLFlag, userAgentFlag, logLevelFlag, logPrettyFlag, timeoutFlag, maxRetriesFlag,
		memoryCacheFlag, maxPagesFlag, detectCyclesFlag, maxPendingPagesFlag, formatFlag, itemsPathFlag,
	} {
		mustBindPFlag(v, name, flags.Lookup(name))
	}

	root.AddCommand(newServeCommand(v), newFetchCommand(v))
	return root
}

// readConfig reads and validates the configuration bound in v.
func readConfig(v *viper.Viper) (Config, error) {
	level, err := logging.ParseLevel(v.GetString(logLevelFlag))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RedisURL:        v.GetString(redisURLFlag),
		UserAgent:       v.GetString(userAgentFlag),
		LogLevel:        level,
		LogPretty:       v.GetBool(logPrettyFlag),
		Timeout:         v.GetDuration(timeoutFlag),
		MaxRetries:      v.GetInt(maxRetriesFlag),
		MemoryCacheSize: v.GetInt64(memoryCacheFlag),
		Walk: pagination.Config{
			MaxPages:        v.GetInt(maxPagesFlag),
			DetectCycles:    v.GetBool(detectCyclesFlag),
			MaxPendingPages: v.GetInt(maxPendingPagesFlag),
		},
		Format:    strings.ToLower(v.GetString(formatFlag)),
		ItemsPath: v.GetString(itemsPathFlag),
	}

	if cfg.Format != formatRDF && cfg.Format != formatJSON {
		return Config{}, fmt.Errorf("unknown format %q (want %s or %s)", cfg.Format, formatRDF, formatJSON)
	}
	if err := cfg.Walk.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// newClient connects to Redis, if configured, and creates the page client.
// The returned cleanup closes both.
func newClient(ctx context.Context, cfg Config) (*client.Client, *redis.Client, func(), error) {
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, nil, fmt.Errorf("connect to Redis at %s: %w", cfg.RedisURL, err)
		}
	}

	clientCfg := client.DefaultConfig(redisClient, cfg.UserAgent)
	clientCfg.Timeout = cfg.Timeout
	clientCfg.MaxRetries = cfg.MaxRetries
	clientCfg.MemoryCacheSize = cfg.MemoryCacheSize

	c, err := client.New(clientCfg)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, nil, nil, fmt.Errorf("create client: %w", err)
	}

	cleanup := func() {
		c.Close()
		if redisClient != nil {
			redisClient.Close()
		}
	}
	return c, redisClient, cleanup, nil
}

func setupLogging(cfg Config, cmd *cobra.Command) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Pretty = cfg.LogPretty
	logCfg.Output = cmd.ErrOrStderr()
	logCfg.Service = "paged-proxy"
	logging.Setup(logCfg)
}
