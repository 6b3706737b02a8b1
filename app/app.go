package n14

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/nil071n/N14/core"
	"github.com/nil071n/N14/pkg/router"
)

const sessionReapInterval = 5 * time.Second

type App struct {
	config    *Config
	context   context.Context
	cancel    context.CancelFunc
	server    *http.Server
	logger    *slog.Logger
	router    *router.Router
	wsManager *core.ConnManager
	notifier  *core.Notifier
	room      *core.Chatroom
	sessions  *SessionRegistry
	// watchers holds the function that stops forwarding changes to a
	// connected session.
	watchers *core.SyncMap[string, func()]

	roomOptions []core.ChatroomOption

	userHandler *UserHandler
	chatHandler *ChatHandler
	authHandler *AuthHandler

	cleanupFuncs []func(context.Context)
	closeOnce    sync.Once

	wg sync.WaitGroup
}

type Option func(*App)

func WithLogger(logger *slog.Logger) Option {
	return func(app *App) {
		app.logger = logger
	}
}

func WithChatroomOptions(opts ...core.ChatroomOption) Option {
	return func(app *App) {
		app.roomOptions = append(app.roomOptions, opts...)
	}
}

// New wires the app. A nil ctx is cancelled by SIGINT, SIGTERM, SIGQUIT and
// SIGHUP. A nil config is loaded with LoadConfig.
func New(ctx context.Context, config *Config, opts ...Option) (*App, error) {
	app := &App{
		watchers: core.NewSyncMap[string, func()](),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context, app.cancel = context.WithCancel(ctx)

	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, errors.New(FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	for _, opt := range opts {
		opt(app)
	}

	if err := app.init(); err != nil {
		app.Shutdown(context.Background())
		return nil, err
	}
	return app, nil
}

func (app *App) init() error {
	kv, err := app.openStore()
	if err != nil {
		return err
	}

	app.notifier = core.NewNotifier(app.logger, 256)
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.notifier.Listen(app.context)
	}()

	if app.config.NATS.URL != "" {
		if err := app.relayChanges(); err != nil {
			return err
		}
	}

	app.room = core.NewChatroom(kv, app.notifier, app.logger, app.roomOptions...)
	if err := app.room.Initialize(app.context); err != nil {
		return fmt.Errorf("initialize chatroom: %w", err)
	}
	app.sessions = NewSessionRegistry(app.room, app.config.Auth.Secret, app.config.Auth.TokenTTL)
	app.AddCleanupFunc(func(ctx context.Context) {
		app.sessions.SuspendAll()
	})

	app.wsManager = core.NewConnManager(app.context, &app.wg, app.logger,
		core.WithCheckOrigin(app.checkOrigin))
	app.wsManager.OnSessionConnected(app.onSessionConnect)
	app.wsManager.OnSessionDisconnected(app.onSessionDisconnect)
	app.AddCleanupFunc(func(ctx context.Context) {
		app.wsManager.Close()
	})

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.reapSessions(sessionReapInterval)
	}()

	app.userHandler = NewUserHandler()
	app.chatHandler = NewChatHandler()
	app.authHandler = NewAuthHandler(app.sessions, app.wsManager)
	sessionMiddleware := SessionMiddleware(app.sessions)

	app.router = router.New(router.WithLogger(app.logger))
	registerErrorMappers(app.router)

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.With(sessionMiddleware).Get("/ws", app.WSHandler)

	app.router.Route("/api", func(api *router.Router) {
		api.Route("/auth", func(r *router.Router) {
			r.Post("/register", app.authHandler.RegisterHandler)
			r.Post("/signin", app.authHandler.SigninHandler)
			r.With(sessionMiddleware).Post("/signout", app.authHandler.SignoutHandler)
		})

		api.Group(func(r *router.Router) {
			r.Use(sessionMiddleware)
			r.Get("/users/me", app.userHandler.MeHandler)
			r.Get("/users", app.userHandler.RosterHandler)
			r.Get("/channels", app.chatHandler.ChannelsHandler)
			r.Post("/channels/{name}/open", app.chatHandler.OpenChannelHandler)
			r.Get("/dms", app.chatHandler.ConversationsHandler)
			r.Post("/dms/{username}/open", app.chatHandler.OpenDMHandler)
			r.Get("/thread", app.chatHandler.ThreadHandler)
			r.Post("/thread/messages", app.chatHandler.SendMessageHandler)
		})
	})

	app.server = &http.Server{
		Addr:    app.config.Addr(),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}
	if app.config.Mode == ProdMode {
		app.server.TLSConfig = newTLSConfig()
	}
	return nil
}

// openStore opens the shared store selected by storage.driver.
func (app *App) openStore() (core.KVStore, error) {
	switch app.config.Storage.Driver {
	case MemoryDriver:
		return core.NewMemoryStore(), nil

	case RedisDriver:
		rdb, err := core.NewRedisClient(app.context, core.RedisOptions{
			Addr:     app.config.Redis.Addr,
			Password: app.config.Redis.Password,
			DB:       app.config.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		app.AddCleanupFunc(func(ctx context.Context) {
			rdb.Close()
		})
		return core.NewRedisStore(rdb, app.config.Redis.Prefix), nil

	default:
		sqliteOptions := &core.SQLiteDBOption{
			Mode:        "rwc",
			Cache:       "shared",
			JournalMode: "WAL",
		}
		db, err := core.NewSQLiteDB(app.config.SQLite.File, sqliteOptions)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		app.AddCleanupFunc(func(ctx context.Context) {
			db.Close()
		})
		if err := db.Migrate(); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		return core.NewSQLiteStore(db.DB), nil
	}
}

// relayChanges shares store changes with the other processes connected to
// the same NATS server.
func (app *App) relayChanges() error {
	nc, err := nats.Connect(app.config.NATS.URL, nats.Name("n14"))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		nc.Drain()
	})

	bridge := core.NewNATSBridge(nc, app.config.NATS.Subject, app.notifier, app.logger)
	if err := bridge.Start(); err != nil {
		return err
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		bridge.Close()
	})
	return nil
}

// reapSessions takes abandoned pages offline and drops expired sessions
// until the app context is done.
func (app *App) reapSessions(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-app.context.Done():
			return
		case now := <-ticker.C:
			app.sessions.Reap(now, app.wsManager.IsConnected)
		}
	}
}

func (app *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(app.config.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(app.config.AllowedOrigins, origin)
}

// Handler returns the root handler of the app.
func (app *App) Handler() http.Handler {
	return app.router
}

// Start serves until the app context is done or the server fails, then
// shuts the app down.
func (app *App) Start() error {
	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info(fmt.Sprintf("app running in %s mode on: %s", app.config.Mode, app.config.Addr()))

		var err error
		if app.config.TLS.Key != "" && app.config.TLS.Crt != "" {
			err = app.server.ListenAndServeTLS(app.config.TLS.Crt, app.config.TLS.Key)
		} else {
			err = app.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var err error
	select {
	case err = <-serveErr:
		if err != nil {
			err = fmt.Errorf("server error: %w", err)
		}
	case <-app.context.Done():
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if shutdownErr := app.Shutdown(closeCtx); shutdownErr != nil {
		return errors.Join(err, shutdownErr)
	}
	return err
}

// Shutdown stops the server and runs the cleanup functions, most recently
// added first. It waits for background goroutines until ctx is done.
func (app *App) Shutdown(ctx context.Context) error {
	var err error
	app.closeOnce.Do(func() {
		if app.server != nil {
			app.server.Shutdown(ctx)
		}
		for _, f := range slices.Backward(app.cleanupFuncs) {
			f(ctx)
		}
		app.cancel()

		done := make(chan struct{})
		go func() {
			app.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
		case <-ctx.Done():
			app.logger.Info("app shutdown timed out")
			err = ctx.Err()
		}
	})
	return err
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}
