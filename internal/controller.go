package internal

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/wardenms/warden/internal/analytics"
	"github.com/wardenms/warden/internal/auth"
	"github.com/wardenms/warden/internal/core"
	"github.com/wardenms/warden/internal/core/data"
	"github.com/wardenms/warden/internal/core/events"
	"github.com/wardenms/warden/internal/debug"
	"github.com/wardenms/warden/internal/lobby"
	"github.com/wardenms/warden/internal/master"
	"github.com/wardenms/warden/internal/matchmaker"
	"github.com/wardenms/warden/internal/peer"
	"github.com/wardenms/warden/internal/room"
	"github.com/wardenms/warden/internal/route"
	"github.com/wardenms/warden/internal/spawner"
	"github.com/wardenms/warden/internal/web"
)

// Controller is the main entrypoint for warden. It's responsible for
// initializing shared resources (database, logging, the event bus, the module
// registries), wiring the modules together, and launching everything.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
	db     *gorm.DB
	wg     sync.WaitGroup
}

func (c *Controller) Start(ctx context.Context) error {
	var err error
	// Set up the logger, which will be used by every module.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	if c.Config.Debugging.PprofEnabled {
		debug.StartPprofServer(c.logger, c.Config.Debugging.PprofPort)
	}

	// The database is optional: without one the server runs with
	// authentication disabled and telemetry discarded.
	var accounts data.AccountsAccessor
	var analyticsStore data.AnalyticsAccessor
	if c.Config.Database.Host != "" {
		c.db, err = data.Initialize(c.Config.DatabaseURL(), c.Config.Debugging.DatabaseLoggingEnabled)
		if err != nil {
			return fmt.Errorf("error connecting to database: %w", err)
		}
		c.logger.Infof("connected to database %s:%d", c.Config.Database.Host, c.Config.Database.Port)
		accounts = data.NewGormAccounts(c.db)
		analyticsStore = data.NewGormAnalytics(c.db)
	} else {
		c.logger.Warn("no database configured; running without persistence")
		analyticsStore = discardAnalytics{}
	}

	bus := events.NewBus(c.logger)
	peers := peer.NewRegistry()

	spawners := spawner.NewRegistry(c.logger, bus)
	rooms := room.NewBroker(c.logger, bus, c.Config.Rooms.TokenTTL)
	lobbies := lobby.NewEngine(c.logger, bus, spawners, rooms, c.Config.Spawner.SpawnTimeout)
	lobbies.RegisterFactory("standard", lobby.StandardFactory)

	mm := matchmaker.New(c.logger, spawners)
	mm.RegisterProvider(matchmaker.RoomProvider{Rooms: rooms})
	mm.RegisterProvider(matchmaker.LobbyProvider{Lobbies: lobbies})

	pipeline := analytics.NewPipeline(c.logger, bus, analyticsStore)

	// Module cleanup for departed peers runs through the registry's
	// disconnect hooks, in dependency order.
	peers.OnDisconnect(lobbies.HandleDisconnect)
	peers.OnDisconnect(spawners.HandleDisconnect)
	peers.OnDisconnect(rooms.HandleDisconnect)

	var authService *auth.Service
	if accounts != nil {
		authService = auth.NewService(accounts)
	}

	backend := &master.Server{
		Name:             "MASTER",
		BroadcastAddress: c.Config.BroadcastAddress(),

		Logger:     c.logger,
		Auth:       authService,
		Spawners:   spawners,
		Rooms:      rooms,
		Lobbies:    lobbies,
		Matchmaker: mm,
		Analytics:  pipeline,
	}

	server := &frontend{
		Address: fmt.Sprintf("%s:%d", c.Config.Hostname, c.Config.MasterServer.Port),
		Backend: backend,
		Config:  c.Config,
		Logger:  c.logger,
		Peers:   peers,
		Router:  route.NewRouter(c.logger),
		Bus:     bus,
	}
	if err := server.Start(ctx, &c.wg); err != nil {
		return fmt.Errorf("error starting %s server: %w", backend.Identifier(), err)
	}

	if c.Config.Web.HTTPPort > 0 {
		dashboard := &web.Server{
			Logger:   c.logger,
			Port:     c.Config.Web.HTTPPort,
			Bus:      bus,
			Peers:    peers,
			Spawners: spawners,
			Rooms:    rooms,
			Lobbies:  lobbies,
		}
		if err := dashboard.Start(ctx, &c.wg); err != nil {
			return fmt.Errorf("error starting web server: %w", err)
		}
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		pipeline.Run(ctx, analytics.Options{
			FlushInterval:        c.Config.Analytics.FlushInterval,
			ResetIntervalOnError: c.Config.Analytics.ResetIntervalOnError,
		})
	}()

	c.wg.Wait()
	c.shutdown()
	return ctx.Err()
}

func (c *Controller) shutdown() {
	if c.db != nil {
		if err := data.Shutdown(c.db); err != nil {
			c.logger.Warnf("error closing database: %v", err)
		}
	}
}

// discardAnalytics drops telemetry when no database is configured.
type discardAnalytics struct{}

func (discardAnalytics) InsertEvents(context.Context, []data.AnalyticsEventRecord) error {
	return nil
}
