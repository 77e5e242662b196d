package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/ValentinKolb/dDS/lib/db/engines/arbor"
	"github.com/ValentinKolb/dDS/lib/db/engines/badgerdb"
	"github.com/ValentinKolb/dDS/lib/db/engines/sqlite"
	"github.com/ValentinKolb/dDS/lib/derivation"
	"github.com/ValentinKolb/dDS/lib/derivation/derivers/history"
	"github.com/ValentinKolb/dDS/lib/derivation/derivers/manifestdigest"
	"github.com/ValentinKolb/dDS/lib/store"
	"github.com/ValentinKolb/dDS/lib/store/lstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dds")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupEngineFlags adds the flags shared by every command that runs the
// derivation engine (admin and worker)
func SetupEngineFlags(cmd *cobra.Command) {
	key := "graph"
	cmd.PersistentFlags().String(key, "graph.json", WrapString("Path to the commit graph snapshot file"))

	key = "records-backend"
	cmd.PersistentFlags().String(key, "arbor", WrapString("Engine backing the record store (arbor, badger, sqlite)"))

	key = "shared-cache-backend"
	cmd.PersistentFlags().String(key, "none", WrapString("Engine backing the shared cache tier (none, arbor, badger, sqlite)"))

	key = "data-dir"
	cmd.PersistentFlags().String(key, "data", WrapString("Directory for persistent backends (badger, sqlite)"))

	key = "local-ttl"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Expiry for entries in the local cache tier (0 = no expiry)"))

	key = "shared-ttl"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Expiry for entries in the shared cache tier (0 = no expiry)"))

	key = "lease-ttl"
	cmd.PersistentFlags().Duration(key, 30*time.Second, WrapString("How long a derivation claim is held before other workers may take it over"))

	key = "renew-every"
	cmd.PersistentFlags().Duration(key, 0, WrapString("Interval at which a working owner renews its claim (0 = a third of lease-ttl)"))

	key = "wait-timeout"
	cmd.PersistentFlags().Duration(key, time.Minute, WrapString("How long to wait for a foreign claim before giving up with a timeout"))

	key = "poll-interval"
	cmd.PersistentFlags().Duration(key, 50*time.Millisecond, WrapString("Interval at which a waiting worker re-checks a foreign claim"))

	key = "fan-out-limit"
	cmd.PersistentFlags().Int(key, 64, WrapString("Maximum number of parents a single commit may have during traversal"))

	key = "max-frontier"
	cmd.PersistentFlags().Int(key, 100_000, WrapString("Maximum number of commits a single derivation may visit"))

	key = "disable"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated list of derived data types to disable"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// EngineOptions reads the derivation engine options from viper
func EngineOptions() derivation.Options {
	return derivation.Options{
		LeaseTTL:     viper.GetDuration("lease-ttl"),
		RenewEvery:   viper.GetDuration("renew-every"),
		WaitTimeout:  viper.GetDuration("wait-timeout"),
		PollInterval: viper.GetDuration("poll-interval"),
		FanOutLimit:  viper.GetInt("fan-out-limit"),
		MaxFrontier:  viper.GetInt("max-frontier"),
	}
}

// NewRegistry creates the deriver registry with all built-in derived data
// types registered, minus the ones disabled via configuration
func NewRegistry() *derivation.Registry {
	registry := derivation.NewRegistry()
	registry.Register(manifestdigest.New())
	registry.Register(history.New())

	for _, name := range strings.Split(viper.GetString("disable"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			registry.SetEnabled(name, false)
		}
	}

	return registry
}

// NewBackendStore creates a local store over the configured engine backend.
// The name keys the on-disk location for persistent backends so multiple
// stores can share one data directory.
func NewBackendStore(backend, dataDir, name string) (store.IStore, error) {
	switch backend {
	case "arbor":
		return lstore.NewLocalStore(func() db.KVDB { return arbor.NewArborDB(nil) }), nil
	case "badger":
		kv, err := badgerdb.NewBadgerDB(&badgerdb.DBOptions{Path: filepath.Join(dataDir, name)})
		if err != nil {
			return nil, err
		}
		return lstore.NewLocalStore(func() db.KVDB { return kv }), nil
	case "sqlite":
		kv, err := sqlite.NewSQLiteDB(&sqlite.DBOptions{Path: filepath.Join(dataDir, name+".sqlite")})
		if err != nil {
			return nil, err
		}
		return lstore.NewLocalStore(func() db.KVDB { return kv }), nil
	default:
		return nil, fmt.Errorf("invalid backend %s (expected one of: arbor, badger, sqlite)", backend)
	}
}
