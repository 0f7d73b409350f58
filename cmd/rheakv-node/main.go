package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/myuser/rheakv/internal/config"
	"github.com/myuser/rheakv/internal/kv"
	"github.com/myuser/rheakv/internal/metrics"
	"github.com/myuser/rheakv/internal/raftapply"
)

var rootCmd = &cobra.Command{
	Use:   "rheakv-node",
	Short: "run a single rheakv in-memory raw key-value engine node",
	Long: `rheakv-node wires the in-memory raw key-value engine to a replicated-log
apply path (etcd/raft over HTTP), a metrics HTTP endpoint, and this process's
configuration — the out-of-scope collaborators the engine is invoked through.`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.Uint64("replica-id", 0, "unique raft ID for this node (required)")
	flags.String("peers", "", "comma-separated ID=addr list of peer nodes")
	flags.String("data-dir", "data", "directory for WAL and snapshot files")
	flags.Int("keys-per-segment", 1000, "maximum primary-store entries per snapshot segment")
	flags.String("endpoint", "0.0.0.0:8080", "address the raft HTTP transport listens on")
	flags.String("metrics-addr", "0.0.0.0:9090", "address the metrics endpoint listens on")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}

func initConfig() {
	viper.SetEnvPrefix("rheakv")
	viper.AutomaticEnv()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("rheakv-node: create data dir: %w", err)
	}

	engine := kv.NewEngine(cfg.KeysPerSegment)
	applier := raftapply.NewEngineApplier(engine, filepath.Join(cfg.DataDir, "snapshot"))
	transport := raftapply.NewHTTPTransport()
	transport.SetPeers(cfg.Peers)

	var peerIDs []uint64
	for id := range cfg.Peers {
		peerIDs = append(peerIDs, id)
	}

	node, err := raftapply.NewNode(raftapply.Config{
		ID:      cfg.ReplicaID,
		Peers:   peerIDs,
		WALPath: filepath.Join(cfg.DataDir, "raft.wal"),
	}, applier, transport)
	if err != nil {
		return fmt.Errorf("rheakv-node: start raft node: %w", err)
	}

	raftMux := http.NewServeMux()
	raftMux.HandleFunc("/raft", transport.Handler(node))
	raftServer := &http.Server{Addr: cfg.Endpoint, Handler: raftMux}

	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/metrics", metrics.Handler)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go node.Run(ctx)
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("rheakv-node: metrics server error: %v\n", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = raftServer.Close()
		_ = metricsServer.Close()
	}()

	fmt.Printf("rheakv-node %d listening on %s (metrics on %s)\n", cfg.ReplicaID, cfg.Endpoint, cfg.MetricsAddr)
	if err := raftServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
