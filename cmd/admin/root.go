package admin

import (
	"fmt"

	"github.com/ValentinKolb/dDS/cmd/util"
	"github.com/ValentinKolb/dDS/lib/cache"
	"github.com/ValentinKolb/dDS/lib/derivation"
	"github.com/ValentinKolb/dDS/lib/derivation/derivers/manifestdigest"
	"github.com/ValentinKolb/dDS/lib/id"
	"github.com/ValentinKolb/dDS/lib/logging"
	"github.com/ValentinKolb/dDS/lib/scm/memgraph"
	"github.com/ValentinKolb/dDS/lib/store"
	"github.com/ValentinKolb/dDS/lib/verify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	engine      *derivation.Engine
	validator   *verify.Validator
	graph       *memgraph.Graph
	commitNames map[string]id.CommitId

	// AdminCommands represents the admin command group
	AdminCommands = &cobra.Command{
		Use:               "admin",
		Short:             "Operate on derived data",
		Long:              "Run derivation engine operations against a commit graph snapshot. Commits are addressed by snapshot name, hex id or bookmark.",
		PersistentPreRunE: setup,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add engine flags to the admin command
	util.SetupEngineFlags(AdminCommands)

	AdminCommands.PersistentFlags().String("type", manifestdigest.TypeName, util.WrapString("Derived data type to operate on"))

	// Add subcommands
	AdminCommands.AddCommand(deriveCmd)
	AdminCommands.AddCommand(rederiveCmd)
	AdminCommands.AddCommand(existsCmd)
	AdminCommands.AddCommand(fetchCmd)
	AdminCommands.AddCommand(countUnderivedCmd)
	AdminCommands.AddCommand(verifyCmd)
	AdminCommands.AddCommand(perfTestCmd)
}

// setup loads the graph and builds the derivation engine from configuration
func setup(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	logging.InitLoggers(viper.GetString("log-level"))

	var err error
	graph, commitNames, err = util.LoadGraph(viper.GetString("graph"))
	if err != nil {
		return err
	}

	dataDir := viper.GetString("data-dir")

	// the local tier is always an in-process arbor store
	local, err := util.NewBackendStore("arbor", dataDir, "local-cache")
	if err != nil {
		return err
	}

	var shared store.IStore
	if backend := viper.GetString("shared-cache-backend"); backend != "none" {
		if shared, err = util.NewBackendStore(backend, dataDir, "shared-cache"); err != nil {
			return err
		}
	}

	records, err := util.NewBackendStore(viper.GetString("records-backend"), dataDir, "records")
	if err != nil {
		return err
	}

	c := cache.New(local, shared, cache.Options{
		Name:      "dds",
		LocalTTL:  viper.GetDuration("local-ttl"),
		SharedTTL: viper.GetDuration("shared-ttl"),
	})

	engine = derivation.NewEngine(graph, c, records, util.NewRegistry(), util.EngineOptions())
	validator = verify.New(graph, engine)

	return nil
}

// opType resolves the --type flag against the registry
func opType() (id.DerivedDataType, error) {
	name := viper.GetString("type")
	d, ok := engine.Registry().Get(name)
	if !ok {
		return id.DerivedDataType{}, fmt.Errorf("unknown or disabled derived data type %q (registered: %v)", name, engine.Registry().Names())
	}
	return d.Type(), nil
}

// resolveArgs turns positional arguments into commit ids
func resolveArgs(args []string) ([]id.CommitId, error) {
	commits := make([]id.CommitId, len(args))
	for i, arg := range args {
		cid, err := util.ResolveCommit(graph, commitNames, arg)
		if err != nil {
			return nil, err
		}
		commits[i] = cid
	}
	return commits, nil
}
