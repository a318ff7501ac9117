// Package app wires the fleet map together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lcalzada-xor/fleetmap/internal/adapters/directory"
	"github.com/lcalzada-xor/fleetmap/internal/adapters/events"
	"github.com/lcalzada-xor/fleetmap/internal/adapters/health"
	"github.com/lcalzada-xor/fleetmap/internal/adapters/reporting"
	"github.com/lcalzada-xor/fleetmap/internal/adapters/storage"
	"github.com/lcalzada-xor/fleetmap/internal/adapters/web/middleware"
	webserver "github.com/lcalzada-xor/fleetmap/internal/adapters/web/server"
	"github.com/lcalzada-xor/fleetmap/internal/config"
	"github.com/lcalzada-xor/fleetmap/internal/core/ports"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/audit"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/console"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/feed"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/presentation"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/probe"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/session"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/status"
	"github.com/lcalzada-xor/fleetmap/internal/core/services/topology"
	"github.com/lcalzada-xor/fleetmap/internal/geo"
	"github.com/lcalzada-xor/fleetmap/internal/logger"
	"github.com/lcalzada-xor/fleetmap/internal/mock"
	"github.com/lcalzada-xor/fleetmap/internal/telemetry"
)

const (
	// IconAssetBase is where the web UI serves marker icons from.
	IconAssetBase = "/static/icons"
	feedBuffer    = 1024
	mockSeed      = 42
	mockToken     = "mock-session"
)

// Application holds the core components of the application.
type Application struct {
	Config *config.Config

	Session    *session.Session
	Store      *status.Store
	Dispatcher *probe.Dispatcher
	Topology   *topology.Service
	Presenter  *presentation.Adapter
	Console    *console.Console

	AuditStore   *storage.SQLiteAdapter
	AuditService *audit.AuditService
	Feed         *feed.FeedManager
	WebServer    *webserver.Server
	HealthServer *health.Server

	publisher *events.KafkaPublisher
	log       zerolog.Logger
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
		log:    logger.WithComponent("app"),
	}

	if err := app.bootstrap(); err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap() error {
	// 1. Foundation
	telemetry.InitMetrics()

	token := app.Config.Directory.Token
	if token == "" && app.Config.MockMode {
		token = mockToken
	}
	app.Session = session.New(token)
	if !app.Session.State().Valid && !app.Config.MockMode {
		app.log.Warn().Msg("No usable directory token configured; renew it through the session API")
	}

	if err := app.initStorage(); err != nil {
		return err
	}

	dir, err := app.initDirectory()
	if err != nil {
		return err
	}

	// 2. Core services
	app.Store = status.NewStore()
	app.Dispatcher = probe.NewDispatcher(dir, app.Store,
		probe.WithPollInterval(app.Config.Probe.PollInterval),
		probe.WithTaskTimeout(app.Config.Probe.TaskTimeout),
	)
	app.Topology = topology.NewService(dir)
	app.Presenter = presentation.NewAdapter(app.Store, app.Topology,
		presentation.NewPalette(IconAssetBase),
		geo.NewStaticProvider(app.Config.Latitude, app.Config.Longitude),
	)
	app.Store.AddObserver(app.Presenter)
	app.Topology.AddObserver(app.Presenter)

	app.initFeed()

	app.Console = console.New(console.Deps{
		Topology:       app.Topology,
		Dispatcher:     app.Dispatcher,
		Presenter:      app.Presenter,
		Session:        app.Session,
		Audit:          app.AuditService,
		EagerHierarchy: app.Config.EagerHierarchy,
	})

	// 3. Servers
	return app.initServers()
}

func (app *Application) initStorage() error {
	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create DB directory: %w", err)
	}

	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init audit storage: %w", err)
	}
	app.AuditStore = store
	app.AuditService = audit.NewAuditService(store, app.Session)
	return nil
}

func (app *Application) initDirectory() (ports.Directory, error) {
	if app.Config.MockMode {
		fixture, err := mock.LoadFixture(app.Config.MockFixture)
		if err != nil {
			return nil, err
		}
		app.log.Info().
			Int("datacenters", len(fixture.DataCenters)).
			Int("cameras", len(fixture.Cameras)).
			Msg("Mock mode active: serving a simulated directory")
		return mock.NewDirectory(fixture, mockSeed), nil
	}

	opts := []directory.Option{directory.WithTimeout(app.Config.Directory.Timeout)}
	if app.Config.Directory.InsecureSkipVerify {
		app.log.Warn().Msg("TLS verification disabled for the directory")
		opts = append(opts, directory.WithInsecureSkipVerify())
	}
	client, err := directory.NewClient(app.Config.Directory.BaseURL, app.Session, opts...)
	if err != nil {
		return nil, fmt.Errorf("directory client: %w", err)
	}
	return client, nil
}

func (app *Application) initFeed() {
	if !app.Config.Kafka.Enabled() {
		return
	}
	app.publisher = events.NewKafkaPublisher(app.Config.Kafka.Brokers, app.Config.Kafka.Topic, "fleetmap")
	app.Feed = feed.NewFeedManager(app.publisher, feedBuffer, app.Config.Kafka.FlushInterval)
	app.Store.AddObserver(app.Feed)
	app.log.Info().Strs("brokers", app.Config.Kafka.Brokers).Str("topic", app.Config.Kafka.Topic).Msg("Status feed enabled")
}

func (app *Application) initServers() error {
	proxies, err := middleware.ParseTrustedProxies(app.Config.TrustedProxies)
	if err != nil {
		return err
	}
	app.WebServer = webserver.NewServer(app.Config.Addr, app.Console, reporting.NewPDFExporter(), webserver.Options{
		AllowedOrigins: app.Config.AllowedOrigins,
		ProbeRateLimit: app.Config.Probe.RateLimit,
		TrustedProxies: proxies,
	})
	app.Presenter.AddListener(app.WebServer.WSManager)
	app.Session.AddListener(app.WebServer.WSManager)

	app.HealthServer = health.NewServer(fmt.Sprintf(":%d", app.Config.GRPCPort), app.Session.State().Valid)
	app.Session.AddListener(app.HealthServer)
	return nil
}

// Run starts the application components and blocks until ctx is cancelled or
// a server fails.
func (app *Application) Run(ctx context.Context) error {
	app.log.Info().Msg("Starting fleetmap components")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Presenter.Run(ctx)
		return nil
	})

	if app.Feed != nil {
		app.Feed.Start(ctx)
		g.Go(func() error {
			<-app.Feed.Done()
			return nil
		})
	}

	g.Go(func() error {
		if err := app.WebServer.Run(ctx); err != nil {
			return fmt.Errorf("web server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := app.HealthServer.Start(ctx); err != nil {
			return fmt.Errorf("grpc server error: %w", err)
		}
		return nil
	})

	if app.Config.MockMode || app.Session.State().Valid {
		g.Go(func() error {
			if _, err := app.Console.LoadTopology(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.log.Warn().Err(err).Msg("Initial topology load failed")
			}
			return nil
		})
	}

	app.log.Info().Str("addr", app.Config.Addr).Int("grpc_port", app.Config.GRPCPort).Msg("Fleetmap ready. Press Ctrl+C to terminate.")

	err := g.Wait()
	app.shutdown()
	return err
}

// shutdown stops background sweeps and releases storage and the broker writer.
func (app *Application) shutdown() {
	app.log.Info().Msg("Shutting down")
	app.Console.Close()

	if app.publisher != nil {
		if err := app.publisher.Close(); err != nil {
			app.log.Error().Err(err).Msg("Failed to close status feed")
		}
	}
	app.closeStorage()
}

func (app *Application) closeStorage() {
	if app.AuditStore == nil {
		return
	}
	if err := app.AuditStore.Close(); err != nil {
		app.log.Error().Err(err).Msg("Failed to close audit storage")
	}
	app.AuditStore = nil
}
