// Package app wires configuration, storage, the generation backend and the
// Telegram runtime into a runnable bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/interestbot/core/bootstrap"
	coredatabase "github.com/m3rciful/interestbot/core/database"
	"github.com/m3rciful/interestbot/core/logger"
	tg "github.com/m3rciful/interestbot/core/telegram"
	tghelpers "github.com/m3rciful/interestbot/core/telegram/helpers"
	"github.com/m3rciful/interestbot/core/telegram/middleware"
	"github.com/m3rciful/interestbot/core/telegram/router"
	"github.com/m3rciful/interestbot/internal/bot"
	"github.com/m3rciful/interestbot/internal/conversation"
	"github.com/m3rciful/interestbot/internal/counter"
	"github.com/m3rciful/interestbot/internal/matching"
	"github.com/m3rciful/interestbot/internal/metrics"
	"github.com/m3rciful/interestbot/internal/recommend"
	"github.com/m3rciful/interestbot/internal/store"
	"github.com/m3rciful/interestbot/internal/store/memstore"
	"github.com/m3rciful/interestbot/internal/store/mongostore"
	"github.com/m3rciful/interestbot/internal/store/pgstore"

	tele "gopkg.in/telebot.v4"
)

const component = "app"

const (
	replyNotAdmin   = "⛔ This command is restricted."
	replyNeedsText  = "Please send text messages only."
	shutdownTimeout = 5 * time.Second
)

// App holds the wired dependencies of the bot.
type App struct {
	cfg *Config

	store     store.Store
	transport *bot.Transport
	engine    *matching.Engine
	registry  *tg.Registry

	metrics   *metrics.Server
	sweepStop context.CancelFunc
	sweepWG   sync.WaitGroup
}

// Bootstrap initializes the logger, opens the configured store, builds the
// generation client and wires everything together.
func Bootstrap(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}

	var dbCfg *coredatabase.Config
	if cfg.Storage.Driver == store.DriverPostgres {
		dbCfg = &cfg.Database
	}
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: dbCfg,
	})
	if err != nil {
		return nil, err
	}

	st, err := OpenStore(context.Background(), cfg, res.DB)
	if err != nil {
		return nil, err
	}

	gen, err := recommend.NewOpenAI(cfg.Generation)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}

	a, err := New(cfg, st, gen)
	if err != nil {
		_ = st.Close(context.Background())
		return nil, err
	}
	return a, nil
}

// OpenStore returns the backend selected by storage.driver. db is the
// migrated PostgreSQL pool and is only used by the postgres driver.
func OpenStore(ctx context.Context, cfg *Config, db *sqlx.DB) (store.Store, error) {
	switch cfg.Storage.Driver {
	case store.DriverMemory:
		logger.Warn(ctx, component, "store.memory",
			slog.String("cause", "state is lost on restart"),
		)
		return memstore.New(), nil
	case store.DriverMongo:
		st, err := mongostore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		return st, nil
	case store.DriverPostgres:
		if db == nil {
			return nil, errors.New("app: postgres driver selected without a database connection")
		}
		return pgstore.New(db), nil
	default:
		return nil, fmt.Errorf("app: unknown storage driver %q", cfg.Storage.Driver)
	}
}

// New wires the domain services on top of an opened store and generator.
func New(cfg *Config, st store.Store, gen recommend.Generator) (*App, error) {
	prompt, err := recommend.NewPrompt(cfg.Generation.RecommendPrompt)
	if err != nil {
		return nil, err
	}

	transport := bot.NewTransport()
	engine := matching.NewEngine(st, transport)
	machine := conversation.NewMachine(st, gen, prompt, engine)
	handlers := bot.NewHandlers(machine, counter.NewService(st), engine)

	reg := tg.NewRegistry()
	handlers.Register(reg)

	return &App{
		cfg:       cfg,
		store:     st,
		transport: transport,
		engine:    engine,
		registry:  reg,
	}, nil
}

// Registry returns the command registry.
func (a *App) Registry() *tg.Registry { return a.registry }

// TelegramRunOptions builds the runtime options for core/telegram.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	serial := middleware.SerializePerUser()

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
		OnAdminReject: func(c tele.Context) error {
			return tghelpers.SendText(c, replyNotAdmin)
		},
		Wrap: []tele.MiddlewareFunc{serial},
	})
	routes = append(routes, router.TextRoutes(a.registry, router.TextOptions{
		UnknownDocument: func(c tele.Context) error {
			return tghelpers.SendText(c, replyNeedsText)
		},
		Wrap: []tele.MiddlewareFunc{serial},
	})...)

	return tg.RunOptions{
		Config:            a.cfg.CoreConfig(),
		Registry:          a.registry,
		DispatcherOptions: a.cfg.Sender.Options(),
		Middlewares:       tg.DefaultMiddlewares(),
		Routes:            routes,
		OnStart:           a.onStart,
		OnStop:            a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	if rt.Bot != nil {
		a.transport.Bind(rt.Bot, rt.Dispatcher)
	}

	srv, err := metrics.Start(ctx, a.cfg.Metrics)
	if err != nil {
		return fmt.Errorf("app: metrics listener: %w", err)
	}
	a.metrics = srv

	if interval := a.cfg.Matching.SweepInterval(); interval > 0 {
		sweepCtx, cancel := context.WithCancel(ctx)
		a.sweepStop = cancel
		a.sweepWG.Add(1)
		go func() {
			defer a.sweepWG.Done()
			a.engine.Sweep(sweepCtx, interval)
		}()
		logger.Info(ctx, component, "sweeper.start",
			slog.Duration("interval", interval),
		)
	}

	logger.Info(ctx, component, "wired",
		slog.String("driver", a.cfg.Storage.Driver),
		slog.Int("commands", len(a.registry.Commands())),
	)
	return nil
}

func (a *App) onStop(ctx context.Context, _ tg.Runtime) error {
	if a.sweepStop != nil {
		a.sweepStop()
		a.sweepWG.Wait()
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.metrics.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
	}
	if err := a.store.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}
