package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/tideline/internal/file"
	"github.com/roach88/tideline/internal/gateway"
	"github.com/roach88/tideline/internal/kubo"
	"github.com/roach88/tideline/internal/queue"
	"github.com/roach88/tideline/internal/registry"
	"github.com/roach88/tideline/internal/store"
	"github.com/roach88/tideline/internal/stream"
)

// databases bundles the SQLite files under the data dir. Commands that never
// touch the network open only these.
type databases struct {
	store    *store.Store
	queue    *queue.Queue
	registry *registry.DB
}

// openDatabases creates the data dir if needed and opens the three files.
func openDatabases(cfg Config) (*databases, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "create data dir", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "records.db"))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open record store", err)
	}
	q, err := queue.Open(filepath.Join(cfg.DataDir, "queue.db"))
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "open task queue", err)
	}
	reg, err := registry.Open(filepath.Join(cfg.DataDir, "registry.db"))
	if err != nil {
		st.Close()
		q.Close()
		return nil, WrapExitError(ExitCommandError, "open registry", err)
	}
	return &databases{store: st, queue: q, registry: reg}, nil
}

// Close releases the database handles, logging rather than failing on error.
func (d *databases) Close() {
	if err := d.store.Close(); err != nil {
		slog.Error("error closing record store", "error", err)
	}
	if err := d.queue.Close(); err != nil {
		slog.Error("error closing task queue", "error", err)
	}
	if err := d.registry.Close(); err != nil {
		slog.Error("error closing registry", "error", err)
	}
}

// gatewayEndpoint resolves the gateway for a dapp-scoped command: the
// configured URL wins, then the dapp's registered endpoint.
func (d *databases) gatewayEndpoint(ctx context.Context, cfg Config, dappID string) (string, error) {
	if cfg.GatewayURL != "" {
		return cfg.GatewayURL, nil
	}
	id, err := parseDappID(dappID)
	if err != nil {
		return "", err
	}
	endpoint, err := d.registry.DappEndpoint(ctx, id)
	if err != nil {
		return "", domainError(err)
	}
	return endpoint, nil
}

// engine wires the full stream machinery over one gateway endpoint: content
// cache, loader, acceptor, file resolution, and the task runner.
type engine struct {
	*databases
	kubo     *kubo.Client
	cache    *kubo.Cache
	gateway  *gateway.Client
	loader   *stream.CachedLoader
	acceptor *stream.Acceptor
	files    *file.Client
	runner   *queue.Runner
}

// newEngine wires the collaborators over already-opened databases. The
// endpoint must name a gateway; commands resolve it from --gateway, the
// config file, or the registry before calling.
func newEngine(cfg Config, dbs *databases, endpoint string, logger *slog.Logger) (*engine, error) {
	if endpoint == "" {
		return nil, WrapExitError(ExitCommandError, "no gateway endpoint",
			stream.NewInvalidConfigurationError("set --gateway, gateway_url in the config file, or register the dapp with an endpoint"))
	}

	kuboClient := kubo.NewClient(cfg.KuboURL)
	cache, err := kubo.NewCache(kuboClient, dbs.queue, cfg.CacheSize, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build content cache", err)
	}
	gw := gateway.NewClient(endpoint)

	loader := stream.NewCachedLoader(stream.NewLoader(cache, gw, logger))
	resolver := stream.ModelResolverFunc(func(ctx context.Context, model stream.ID) error {
		_, err := dbs.registry.Model(ctx, model)
		return err
	})
	acceptor := stream.NewAcceptor(dbs.store, loader, resolver, dbs.queue,
		stream.WithLogger(logger),
		stream.WithStateCache(loader),
		stream.WithUpdateTopic(cfg.UpdateTopic),
	)

	return &engine{
		databases: dbs,
		kubo:      kuboClient,
		cache:     cache,
		gateway:   gw,
		loader:    loader,
		acceptor:  acceptor,
		files:     file.NewClient(loader, dbs.registry, logger),
		runner:    queue.NewRunner(dbs.queue, kuboClient, kuboClient, gw, logger),
	}, nil
}
