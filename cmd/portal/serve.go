package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/zinrai/fabric-portal/internal/config"
	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/infrastructure/db"
	"github.com/zinrai/fabric-portal/internal/infrastructure/fabric"
	"github.com/zinrai/fabric-portal/internal/infrastructure/persistence"
	"github.com/zinrai/fabric-portal/internal/interface/api"
	"github.com/zinrai/fabric-portal/internal/log"
	"github.com/zinrai/fabric-portal/internal/metrics"
	"github.com/zinrai/fabric-portal/internal/usecase"
)

// loadConfig reads the config file named by --config and applies the flag
// overrides on top of it.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, err := flags.GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := flags.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if flags.Lookup("listen") != nil {
		if listen, _ := flags.GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}
	}
	return cfg, nil
}

// newServer opens the database and assembles the HTTP server. The returned
// cleanup closes the database.
func newServer(ctx context.Context, cfg *config.Config) (*http.Server, func(), error) {
	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if database.Dialect == db.DialectSQLite {
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewRegistry(reg)

	opts := fabric.Options{
		Timeout:   cfg.Fabric.Timeout,
		RateLimit: cfg.Fabric.RateLimit,
		Burst:     cfg.Fabric.Burst,
		Metrics:   m,
	}
	fwapi := fabric.NewFwapi(cfg.Fabric.FwAPI, opts)
	vmapi := fabric.NewVmapi(cfg.Fabric.VmAPI, opts)
	napi := fabric.NewNapi(cfg.Fabric.NAPI, opts)

	var jobs domain.JobWaiter
	if cfg.Fabric.Workflow != "" {
		jobs = fabric.NewWorkflow(cfg.Fabric.Workflow, cfg.Fabric.JobPollInterval, cfg.Fabric.JobTimeout, opts)
	}

	newUnitOfWork := func(ctx context.Context) domain.UnitOfWork {
		return persistence.NewSession(database, log.G(ctx), m)
	}

	fabricHandler := api.NewFabricHandler(
		usecase.NewFirewallUseCase(fwapi, cfg.Fabric.Concurrency, m),
		usecase.NewNicUseCase(vmapi, jobs, m),
		usecase.NewVlanAllocator(newUnitOfWork, napi, usecase.VlanOptions{
			MinID:      cfg.Vlan.MinID,
			MaxID:      cfg.Vlan.MaxID,
			MaxRetries: cfg.Vlan.MaxRetries,
		}, m),
		usecase.NewCatalogUseCase(napi, fabric.NewImgapi(cfg.Fabric.ImgAPI, opts), fabric.NewPapi(cfg.Fabric.PAPI, opts)),
	)
	userHandler := api.NewUserHandler(usecase.NewAccountUseCase(newUnitOfWork))

	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: api.NewRouter(fabricHandler, userHandler, m.Handler()),
		BaseContext: func(net.Listener) context.Context {
			// in-flight requests outlive the shutdown signal
			return context.WithoutCancel(ctx)
		},
	}
	return server, func() { database.Close() }, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := log.Configure(cfg.Log.Level, cfg.Log.Format, os.Stderr); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithModule(ctx, "portal")

	server, cleanup, err := newServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		log.G(ctx).WithField("listen", cfg.Server.Listen).Info("portal listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	log.G(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	return nil
}
