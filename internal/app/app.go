package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"sensorwatch/internal/alerting"
	"sensorwatch/internal/cache"
	"sensorwatch/internal/config"
	"sensorwatch/internal/ledger"
	"sensorwatch/internal/metrics"
	"sensorwatch/internal/scheduler"
	"sensorwatch/internal/sensor"
	"sensorwatch/internal/server"
	"sensorwatch/internal/service"
	"sensorwatch/internal/storage"
	"sensorwatch/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newNotifier fans out to every configured and enabled channel. It returns
// nil when no channel is usable.
func (a *App) newNotifier() alerting.Notifier {
	cfg := a.Config.Alerting
	fanout := alerting.NewFanoutNotifier()

	for _, ch := range cfg.Channels {
		switch ch {
		case "sms":
			if !cfg.SMS.Enabled {
				continue
			}
			fanout.Add("sms", alerting.NewSMSNotifier(alerting.SMSOptions{
				AccountSID: cfg.SMS.AccountSID,
				AuthToken:  cfg.SMS.AuthToken,
				From:       cfg.SMS.From,
				To:         cfg.SMS.To,
				BaseURL:    cfg.SMS.APIBase,
				Timeout:    cfg.RequestTimeout,
			}, a.Logger))
		case "telegram":
			if !cfg.Telegram.Enabled {
				continue
			}
			fanout.Add("telegram", alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.RequestTimeout, a.Logger))
		}
	}

	if fanout.Len() == 0 {
		return nil
	}
	return fanout
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openCache prefers Redis and falls back to the in-process window when no
// address is configured.
func (a *App) openCache(ctx context.Context) (cache.Store, func(), error) {
	if a.Config.Cache.RedisAddr == "" {
		a.Logger.Warn().Msg("cache.redis_addr not configured; using in-process recent-reading window")
		return cache.NewMemory(a.Config.Cache.Retention), func() {}, nil
	}

	rdb, err := cache.NewRedis(ctx, cache.RedisOptions{
		Addr:      a.Config.Cache.RedisAddr,
		Password:  a.Config.Cache.RedisPassword,
		DB:        a.Config.Cache.RedisDB,
		KeyPrefix: a.Config.Cache.KeyPrefix,
		Window:    a.Config.Cache.Retention,
	})
	if err != nil {
		return nil, nil, err
	}
	return rdb, func() { _ = rdb.Close() }, nil
}

func (a *App) catalog() (*sensor.Catalog, error) {
	return sensor.NewCatalog(a.Config.Thresholds.Profiles())
}

type components struct {
	svc     *service.Service
	metrics *metrics.Metrics
	store   *storage.Store
	closers []func()
}

func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// buildService wires the ingestion pipeline from configuration. notifier
// overrides the configured channels when non-nil.
func (a *App) buildService(ctx context.Context, armed bool, notifier alerting.Notifier) (*components, error) {
	catalog, err := a.catalog()
	if err != nil {
		return nil, err
	}

	c := &components{metrics: metrics.New()}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; durable persistence disabled")
	} else {
		c.store = store
		c.closers = append(c.closers, closeStore)
	}

	recent, closeCache, err := a.openCache(ctx)
	if err != nil {
		c.close()
		return nil, err
	}
	c.closers = append(c.closers, closeCache)

	if notifier == nil {
		notifier = a.newNotifier()
	}
	if notifier == nil {
		a.Logger.Warn().Msg("no alert channel enabled; alerts will be logged only")
	}

	opts := service.Options{
		Catalog:         catalog,
		Ledger:          ledger.New(a.Config.Ledger.MaxEntriesPerSensor),
		Gate:            alerting.NewGate(armed),
		Recent:          recent,
		Notifier:        notifier,
		Metrics:         c.metrics,
		Retention:       a.Config.Cache.Retention,
		CacheTimeout:    a.Config.Cache.Timeout,
		DBTimeout:       a.Config.Database.Timeout,
		AuditRetention:  a.Config.Alerting.AuditRetention,
		AdvisoryLockKey: a.Config.Maintenance.AdvisoryLockKey,
	}
	if store != nil {
		opts.Readings = store
		opts.Alerts = store
	}

	c.svc, err = service.New(opts, a.Logger)
	if err != nil {
		c.close()
		return nil, err
	}
	return c, nil
}

// Run executes the long-running ingestion service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := a.buildService(ctx, a.Config.Alerting.Armed, nil)
	if err != nil {
		return err
	}
	defer c.close()

	srv := server.New(a.Config.Server, c.svc, c.svc.Gate(), c.metrics.Handler(), a.Logger)

	var sched *scheduler.Scheduler
	if c.store != nil {
		sched, err = scheduler.New(scheduler.Options{
			Name:         "alert-retention",
			Interval:     a.Config.Maintenance.Interval,
			AlignToStart: a.Config.Maintenance.AlignToBucket,
			StartupDelay: a.Config.Maintenance.StartupDelay,
		}, a.Logger)
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- srv.Run(ctx) }()
	if sched != nil {
		running++
		go func() { errCh <- sched.Run(ctx, c.svc.PruneAlerts) }()
	}

	a.Logger.Info().Str("version", version.Version).Bool("armed", c.svc.Gate().Armed()).Msg("starting ingestion service")

	var firstErr error
	for ; running > 0; running-- {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
			a.Logger.Error().Err(err).Msg("service terminated with error")
			cancel()
		}
	}

	a.Logger.Info().Msg("ingestion service stopped")
	return firstErr
}

// ExportOptions hold parameters for exporting one sensor's history.
type ExportOptions struct {
	Sensor    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// ReplayOptions configure the replay command.
type ReplayOptions struct {
	Sensor string
	From   time.Time
	To     time.Time
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	EventPath     string
	Sensor        string
	Type          sensor.Type
	Value         float64
	Repeat        int
	ForceDispatch bool
}
