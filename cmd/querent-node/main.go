// Command querent-node runs a single node of the distributed semantic
// ingestion and knowledge engine: it loads the node configuration, wires
// the configured storage backends behind the storage façade, and serves
// the REST surface over internal/api.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/querent-ai/querent-go/internal/actor"
	"github.com/querent-ai/querent-go/internal/discovery"
	"github.com/querent-ai/querent-go/internal/eventstream"
	"github.com/querent-ai/querent-go/internal/insight"
	"github.com/querent-ai/querent-go/internal/storage"
	"github.com/querent-ai/querent-go/internal/storage/graphstore"
	"github.com/querent-ai/querent-go/internal/storage/localstore"
	"github.com/querent-ai/querent-go/internal/storage/pgindex"
	"github.com/querent-ai/querent-go/internal/storage/vectorstore"

	"github.com/querent-ai/querent-go/internal/api"
	"github.com/querent-ai/querent-go/pkg/config"
	"github.com/querent-ai/querent-go/pkg/metrics"
	"github.com/querent-ai/querent-go/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to the node configuration YAML file")
	metricsPort := flag.Int("metrics-port", 9090, "port to serve Prometheus-style metrics on")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("load config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	met := metrics.New()
	met.ServeAsync(*metricsPort)

	if err := run(cfg, logger); err != nil {
		logger.Error("node exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.NodeConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	facade, closeStorage, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build storage: %w", err)
	}
	defer closeStorage()

	discoMgr := discovery.NewManager(actor.NewRuntime(logger), facade, nil, nil, logger)
	insightMgr := insight.NewManager(actor.NewRuntime(logger), insight.NewRegistry(), facade, logger)

	server := api.NewServer(facade, discoMgr, insightMgr, api.NodeInfo{
		Version:   "dev",
		ClusterID: cfg.ClusterID,
		NodeID:    cfg.NodeID,
	}, logger)

	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer conn.Close()
		server.Publisher = &eventstream.NatsPublisher{Conn: conn}
		logger.Info("querent-node: publishing events to nats", "url", cfg.NATSURL)
	}

	corsOrigin := "*"
	if len(cfg.REST.CORSAllowOrigins) > 0 {
		corsOrigin = cfg.REST.CORSAllowOrigins[0]
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.REST.ListenPort),
		Handler:      server.Router(corsOrigin),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("querent-node REST listener starting", "addr", srv.Addr, "node_id", cfg.NodeID)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// buildStorage wires one backend per configured storage entry into a
// storage.Facade, substituting an embedded bbolt default for any event
// type left unconfigured.
func buildStorage(ctx context.Context, cfg config.NodeConfig, logger *slog.Logger) (*storage.Facade, func(), error) {
	local, err := localstore.Open(defaultLocalPath(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("open embedded store: %w", err)
	}
	closers := []func(){func() { local.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var routes storage.Routes
	for _, be := range cfg.StorageConfigs {
		switch be.Kind {
		case config.BackendNeo4j:
			driver, err := neo4j.NewDriverWithContext(be.URL, neo4j.BasicAuth(be.Username, be.Password, ""))
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("neo4j driver: %w", err)
			}
			closers = append(closers, func() { driver.Close(ctx) })
			store := graphstore.New(driver)
			resilient := storage.NewResilientGraphBackend(store, resilience.DefaultBreakerOpts)
			routes.Graph = append(routes.Graph, resilient)
			routes.Index = append(routes.Index, storage.NewResilientIndexBackend(store, resilience.DefaultBreakerOpts))

		case config.BackendQdrant:
			store, err := vectorstore.New(ctx, be.Addr, be.Collection, be.Dimensions)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("qdrant connect: %w", err)
			}
			closers = append(closers, func() { store.Close() })
			routes.Vector = append(routes.Vector, storage.NewResilientVectorBackend(store, resilience.DefaultBreakerOpts))

		case config.BackendPostgres:
			store, err := pgindex.New(ctx, pgindex.Config{
				Host:     be.Host,
				Port:     be.Port,
				User:     be.Username,
				Password: be.Password,
				Database: be.Database,
				SSLMode:  be.SSLMode,
			})
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("postgres connect: %w", err)
			}
			closers = append(closers, func() { store.Close() })
			routes.Index = append(routes.Index, storage.NewResilientIndexBackend(store, resilience.DefaultBreakerOpts))

		case config.BackendEmbedded:
			// The embedded default is always wired below, opened at the
			// path of the first "embedded" entry (see defaultLocalPath);
			// further "embedded" entries are not opened.

		default:
			logger.Warn("querent-node: ignoring storage_configs entry with unknown kind", "kind", be.Kind)
		}
	}

	localDefault := storage.NewLocalDefault(local, local, local, local, local)
	facade := storage.New(routes, localDefault, nil, nil, logger)
	return facade, closeAll, nil
}

func defaultLocalPath(cfg config.NodeConfig) string {
	for _, be := range cfg.StorageConfigs {
		if be.Kind == config.BackendEmbedded && be.Path != "" {
			return be.Path
		}
	}
	return "querent-local.db"
}
