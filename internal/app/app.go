package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"arenakiosk/internal/auth"
	"arenakiosk/internal/autologin"
	"arenakiosk/internal/config"
	"arenakiosk/internal/devicefeed"
	httpserver "arenakiosk/internal/http"
	"arenakiosk/internal/http/handlers"
	"arenakiosk/internal/http/middleware"
	"arenakiosk/internal/identity"
	"arenakiosk/internal/kiosk"
	"arenakiosk/internal/localstate"
	"arenakiosk/internal/models"
	"arenakiosk/internal/osctl"
	"arenakiosk/internal/pricing"
	"arenakiosk/internal/repository"
	"arenakiosk/internal/screenshot"
	"arenakiosk/internal/session"
	"arenakiosk/internal/store"
	libredis "arenakiosk/libs/redis"
)

// MessageAutoLoginFailed is shown when a pushed login could not be accepted.
const MessageAutoLoginFailed = "Automatic login failed. Please log in at the terminal."

// App wires kiosk client dependencies.
type App struct {
	state        localstate.Store
	ident        *identity.Context
	sessions     *repository.SessionRepository
	realtime     *store.Realtime
	controller   *kiosk.Controller
	feed         *devicefeed.Feed
	orchestrator *session.Orchestrator
	server       *httpserver.Server
	logger       *zap.Logger

	// runCtx is set by Run before any component starts.
	runCtx context.Context
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{logger: logger, runCtx: context.Background()}

	state, err := openState(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.state = state

	ident, err := identity.Open(ctx, state, cfg.Device.ID, logger.Named("identity"))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ident = ident
	deviceID := ident.DeviceID()

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}

	tokenSource := store.TokenSource(ident.Token)
	if cfg.Store.Token != "" {
		staticToken := cfg.Store.Token
		tokenSource = func() string { return staticToken }
	}
	client := store.NewClient(cfg.StoreURL(), store.NewDefaultHTTPClient(cfg.Store.Timeout), tokenSource)

	// A nil *Realtime must not reach the Subscriber interfaces.
	var subscriber store.Subscriber
	if cfg.Store.Realtime {
		a.realtime = store.NewRealtime(cfg.StoreURL(), tokenSource, logger.Named("realtime"))
		subscriber = a.realtime
	}

	devices := repository.NewDeviceRepository(client)
	a.sessions = repository.NewSessionRepository(client)
	logs := repository.NewSessionLogRepository(client)
	users := repository.NewUserRepository(client, cfg.Store.IdentityCollections...)
	screenshots := repository.NewScreenshotRepository(client)

	resolver := pricing.NewResolver(
		repository.NewGroupRepository(client),
		repository.NewHappyHourRepository(client),
		loc,
		cfg.Pricing.CacheTTL,
		logger.Named("pricing"),
	)

	var capability osctl.Capability = osctl.Nop{}
	if cfg.OS.Enabled {
		capability = osctl.NewCommandCapability(cfg.OS.Commands, cfg.OS.Timeout, logger.Named("osctl"))
	}
	notify := func(ctx context.Context, text string) {
		if err := capability.ShowNotification(ctx, text); err != nil && !errors.Is(err, osctl.ErrNotConfigured) {
			logger.Warn("notification failed", zap.String("text", text), zap.Error(err))
		}
	}

	a.controller = kiosk.NewController(
		capability,
		kiosk.Geometries{Kiosk: cfg.LockedGeometry(), Normal: cfg.NormalGeometry()},
		cfg.Kiosk.AdminPINHash,
		cfg.Kiosk.QueueSize,
		logger.Named("kiosk"),
	)

	reconciler := session.NewReconciler(session.Deps{
		Sessions: a.sessions,
		Devices:  devices,
		Logs:     logs,
		Pricing:  resolver,
		Notifier: session.NotifierFunc(notify),
		Login:    ident,
		Location: loc,
		Logger:   logger.Named("reconciler"),
	})

	a.orchestrator = session.NewOrchestrator(
		session.Config{
			DeviceID:     deviceID,
			TickInterval: cfg.Session.TickInterval,
			PollInterval: cfg.Session.PollInterval,
			LogoutGrace:  cfg.Session.LogoutGrace,
		},
		reconciler,
		a.sessions,
		subscriber,
		ident,
		a.controller,
		a.applyLock,
		logger.Named("session"),
	)

	watcher := autologin.NewWatcher(deviceID, users, a.autoLogin, func(ctx context.Context, _ string, _ error) {
		notify(ctx, MessageAutoLoginFailed)
	}, logger.Named("autologin"))
	shots := screenshot.NewService(deviceID, capability, screenshots, devices, cfg.Screenshot.Cooldown, logger.Named("screenshot"))

	a.feed = devicefeed.New(deviceID, devices, subscriber, cfg.Device.PollInterval, logger.Named("devicefeed"))
	a.feed.AddListener(watcher.Observe)
	a.feed.AddListener(shots.Observe)

	authService := auth.NewService(client, cfg.Store.IdentityCollections, ident, logger.Named("auth"))
	kioskHandler := handlers.NewKioskHandler(a.orchestrator, authService, a.controller, ident, logger.Named("api"))

	router := httpserver.NewRouter(httpserver.Routes{
		Health:        handlers.NewHealthHandler(),
		Status:        kioskHandler.HandleStatus,
		Login:         kioskHandler.HandleLogin,
		Logout:        kioskHandler.HandleLogout,
		SessionExtend: kioskHandler.HandleSessionExtend,
		KioskUnlock:   kioskHandler.HandleKioskUnlock,
	})
	a.server = httpserver.NewServer(cfg.HTTP.Addr, router, logger,
		middleware.Recovery(logger),
		middleware.Logging(logger),
		middleware.APIKey(cfg.HTTP.APIKey),
	)

	return a, nil
}

// openState opens the configured local state backend. Redis keys are namespaced by the
// configured device id, or the host name when the id is persisted only.
func openState(ctx context.Context, cfg *config.Config) (localstate.Store, error) {
	switch cfg.State.Backend {
	case config.StateRedis:
		client, err := libredis.NewRedisClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("app: connect redis: %w", err)
		}
		namespace := strings.TrimSpace(cfg.Device.ID)
		if namespace == "" {
			if namespace, err = os.Hostname(); err != nil {
				client.Close()
				return nil, fmt.Errorf("app: redis namespace: %w", err)
			}
		}
		return localstate.NewRedisStore(client, namespace), nil
	case config.StateMemory:
		return localstate.NewMemoryStore(), nil
	default:
		st, err := localstate.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			return nil, fmt.Errorf("app: open local state: %w", err)
		}
		return st, nil
	}
}

// Run starts every component and blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	a.runCtx = ctx

	// Locked until the first reconciliation says otherwise.
	if err := a.controller.Apply(ctx, false); err != nil {
		a.logger.Warn("initial lock failed", zap.Error(err))
	}
	a.resume(ctx)

	if a.realtime != nil {
		g.Go(func() error {
			a.realtime.Run(ctx)
			return nil
		})
	}
	g.Go(func() error { return a.controller.Run(ctx) })
	g.Go(func() error { return a.feed.Run(ctx) })
	g.Go(func() error { return a.orchestrator.Run(ctx) })
	g.Go(func() error { return a.server.Run(ctx) })

	return g.Wait()
}

// resume hands the session remembered in the local flags to the orchestrator.
func (a *App) resume(ctx context.Context) {
	flags := a.ident.Flags()
	if !flags.Active || flags.SessionID == "" {
		return
	}
	s, err := a.sessions.Get(ctx, flags.SessionID)
	if err != nil {
		a.logger.Warn("remembered session unavailable", zap.String("session_id", flags.SessionID), zap.Error(err))
		return
	}
	if err := a.orchestrator.Adopt(ctx, s); err != nil {
		a.logger.Warn("adopt remembered session failed", zap.Error(err))
	}
}

func (a *App) applyLock(active bool, _ *models.Session) {
	if err := a.controller.Apply(a.runCtx, active); err != nil {
		a.logger.Warn("apply kiosk lock failed", zap.Bool("active", active), zap.Error(err))
	}
}

func (a *App) autoLogin(ctx context.Context, r autologin.Result) {
	err := a.ident.Login(ctx, identity.Identity{
		UserID:   r.UserID,
		Username: r.Username,
		Token:    r.Token,
		Source:   identity.SourceClientApp,
	})
	if err != nil {
		a.logger.Warn("auto-login not stored", zap.String("user_id", r.UserID), zap.Error(err))
		return
	}
	a.orchestrator.Refresh()
}

// Close releases resources.
func (a *App) Close() {
	if a.ident != nil {
		a.ident.Close()
	}
	if a.state != nil {
		if err := a.state.Close(); err != nil {
			a.logger.Warn("failed to close local state", zap.Error(err))
		}
	}
}
