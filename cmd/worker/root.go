package worker

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dDS/cmd/util"
	"github.com/ValentinKolb/dDS/lib/cache"
	"github.com/ValentinKolb/dDS/lib/db"
	"github.com/ValentinKolb/dDS/lib/db/engines/arbor"
	dbUtil "github.com/ValentinKolb/dDS/lib/db/util"
	"github.com/ValentinKolb/dDS/lib/derivation"
	"github.com/ValentinKolb/dDS/lib/logging"
	"github.com/ValentinKolb/dDS/lib/scm"
	"github.com/ValentinKolb/dDS/lib/store"
	"github.com/ValentinKolb/dDS/lib/store/dstore"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/config"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logger.GetLogger("worker")

var (
	workerConfig = &workerConf{}

	// WorkerCmd represents the worker command
	WorkerCmd = &cobra.Command{
		Use:     "worker",
		Short:   "Run a long-running derivation worker",
		Long:    "Run a worker that keeps the derived data for the configured bookmarks up to date. With cluster members configured, the record store is replicated across workers via raft; derivation claims then hold across processes. The configuration can be set via command line flags or environment variables. The format of the environment variables is DDS_<flag> (e.g. DDS_SYNC_INTERVAL=30s)",
		PreRunE: processConfig,
		RunE:    run,
	}
)

// workerConf holds the parsed worker configuration
type workerConf struct {
	Bookmarks          []string
	SyncInterval       time.Duration
	ShardID            uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	TimeoutSecond      int64
}

// Replicated reports whether the record store runs in raft cluster mode
func (c *workerConf) Replicated() bool {
	return len(c.ClusterMembers) > 0
}

func (c *workerConf) toNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

func (c *workerConf) toRaftConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        10,
		HeartbeatRTT:       2,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
	}
}

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add the shared engine flags
	cmdUtil.SetupEngineFlags(WorkerCmd)

	// add flags
	key := "bookmarks"
	WorkerCmd.PersistentFlags().String(key, "main", cmdUtil.WrapString("Comma-separated list of bookmarks whose heads the worker keeps derived"))

	key = "sync-interval"
	WorkerCmd.PersistentFlags().Duration(key, 10*time.Second, cmdUtil.WrapString("How often the worker re-reads the bookmarks and derives their heads"))

	key = "shard"
	WorkerCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("(Cluster Mode) Raft shard ID of the replicated record store"))

	key = "rtt-millisecond"
	WorkerCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(Cluster Mode) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances"))

	key = "snapshot-entries"
	WorkerCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(Cluster Mode) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries"))

	key = "compaction-overhead"
	WorkerCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(Cluster Mode) CompactionOverhead defines the number of snapshots that should be retained in the system. Recommended value is about 1/2 of SnapshotEntries"))

	key = "replica-id"
	WorkerCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Cluster Mode) ReplicaID is the unique identifier for this worker (e.g. 'worker-1')"))

	key = "cluster-members"
	WorkerCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(Cluster Mode) ClusterMembers is a comma-separated list of worker addresses in the format 'worker-1=localhost:63001,worker-2=localhost:63002,...'"))

	key = "timeout"
	WorkerCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("(Cluster Mode) Timeout in seconds for replicated store operations"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the worker configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	workerConfig.Bookmarks = strings.Split(viper.GetString("bookmarks"), ",")
	workerConfig.SyncInterval = viper.GetDuration("sync-interval")
	workerConfig.ShardID = viper.GetUint64("shard")
	workerConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	workerConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	workerConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	workerConfig.DataDir = viper.GetString("data-dir")
	workerConfig.TimeoutSecond = viper.GetInt64("timeout")

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		workerConfig.ClusterMembers = make(map[uint64]string)
		for _, member := range strings.Split(clusterMembers, ",") {
			parts := strings.Split(member, "=")
			if len(parts) != 2 {
				return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
			}
			idHash := dbUtil.HashString(parts[0], 0)
			workerConfig.ClusterMembers[uint64(idHash)] = parts[1]
		}
	}

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		workerConfig.ReplicaID = uint64(dbUtil.HashString(id, 0))
	} else if workerConfig.Replicated() {
		return fmt.Errorf("replica-id is required in cluster mode")
	}

	// test if the replica id is in the cluster members (only for cluster mode)
	if _, ok := workerConfig.ClusterMembers[workerConfig.ReplicaID]; !ok && workerConfig.Replicated() {
		return fmt.Errorf("no address found for replica ID %d in cluster members", workerConfig.ReplicaID)
	}

	return nil
}

// run starts the worker loop
func run(cmd *cobra.Command, _ []string) error {
	logging.InitLoggers(viper.GetString("log-level"))

	graph, _, err := cmdUtil.LoadGraph(viper.GetString("graph"))
	if err != nil {
		return err
	}

	records, err := newRecordStore()
	if err != nil {
		return err
	}

	local, err := cmdUtil.NewBackendStore("arbor", workerConfig.DataDir, "local-cache")
	if err != nil {
		return err
	}
	var shared store.IStore
	if backend := viper.GetString("shared-cache-backend"); backend != "none" {
		if shared, err = cmdUtil.NewBackendStore(backend, workerConfig.DataDir, "shared-cache"); err != nil {
			return err
		}
	}

	c := cache.New(local, shared, cache.Options{
		Name:      "worker",
		LocalTTL:  viper.GetDuration("local-ttl"),
		SharedTTL: viper.GetDuration("shared-ttl"),
	})

	registry := cmdUtil.NewRegistry()
	engine := derivation.NewEngine(graph, c, records, registry, cmdUtil.EngineOptions())

	log.Infof("worker setup completed, bookmarks: %v, types: %v", workerConfig.Bookmarks, registry.Names())

	// derive until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(workerConfig.SyncInterval)
	defer ticker.Stop()

	for {
		syncOnce(ctx, graph, engine, registry)

		select {
		case <-ctx.Done():
			log.Infof("worker shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// syncOnce derives the current head of every configured bookmark for every
// enabled derived data type
func syncOnce(ctx context.Context, graph scm.Graph, engine *derivation.Engine, registry *derivation.Registry) {
	for _, bookmark := range workerConfig.Bookmarks {
		bookmark = strings.TrimSpace(bookmark)
		if bookmark == "" {
			continue
		}

		head, err := graph.GetBookmark(bookmark)
		if err != nil {
			log.Warningf("resolving bookmark %q failed: %v", bookmark, err)
			continue
		}

		for _, name := range registry.Names() {
			d, ok := registry.Get(name)
			if !ok {
				// disabled
				continue
			}
			t := d.Type()

			if _, err := engine.Derive(ctx, head, t); err != nil {
				log.Errorf("deriving %s for %s@%s failed: %v", t, bookmark, head.Short(), err)
			} else {
				log.Debugf("derived %s for %s@%s", t, bookmark, head.Short())
			}

			if ctx.Err() != nil {
				return
			}
		}
	}
}

// newRecordStore creates the shared record store, replicated via raft in
// cluster mode
func newRecordStore() (store.IStore, error) {
	if !workerConfig.Replicated() {
		return cmdUtil.NewBackendStore(viper.GetString("records-backend"), workerConfig.DataDir, "records")
	}

	nodeHost, err := dragonboat.NewNodeHost(workerConfig.toNodeHostConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create node host: %w", err)
	}

	// the raft log and snapshots carry durability, the state machine itself
	// runs on the in-memory engine
	dbFactory := func() db.KVDB { return arbor.NewArborDB(nil) }

	if err := nodeHost.StartConcurrentReplica(
		workerConfig.ClusterMembers,
		false,
		dstore.CreateStateMachineFactory(dbFactory),
		workerConfig.toRaftConfig(),
	); err != nil {
		return nil, fmt.Errorf("failed to start shard %d: %w", workerConfig.ShardID, err)
	}

	timeout := time.Duration(workerConfig.TimeoutSecond) * time.Second
	return dstore.NewDistributedStore(nodeHost, workerConfig.ShardID, timeout), nil
}
