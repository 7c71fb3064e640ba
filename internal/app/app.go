package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptalert/internal/alerting"
	"cryptalert/internal/cache"
	"cryptalert/internal/chatbot"
	"cryptalert/internal/config"
	"cryptalert/internal/fetcher"
	"cryptalert/internal/history"
	"cryptalert/internal/market"
	"cryptalert/internal/scheduler"
	"cryptalert/internal/service"
	"cryptalert/internal/storage"
	"cryptalert/internal/tui"
	"cryptalert/internal/version"
)

var (
	// ErrNoOutput is returned when run would have nowhere to send its results.
	ErrNoOutput = errors.New("no output enabled: enable alerting.telegram (with alerting.enabled), bot or tui")
	// ErrMissingBotToken is returned when the chat bot is enabled without a token.
	ErrMissingBotToken = errors.New("bot.enabled requires bot.token")
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Stdout io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Stdout: os.Stdout}
}

// outputs resolves which outputs run may use. A bot without a token falls back to the
// terminal display when that is enabled. The alert engine runs whenever alerting is on and
// at least one output can surface its notifications.
type outputs struct {
	telegram bool
	bot      bool
	infoChat bool
	tui      bool
	alerting bool
}

func (a *App) resolveOutputs() (outputs, error) {
	cfg := a.Config
	out := outputs{
		telegram: cfg.Alerting.Enabled && cfg.Alerting.Telegram.Enabled,
		bot:      cfg.Bot.Enabled,
		tui:      cfg.TUI.Enabled,
	}
	if out.bot && cfg.Bot.Token == "" {
		if !out.tui {
			return outputs{}, ErrMissingBotToken
		}
		a.Logger.Warn().Msg("bot.token not set; chat bot disabled, continuing with terminal display")
		out.bot = false
	}
	if !out.telegram && !out.bot && !out.tui {
		return outputs{}, ErrNoOutput
	}
	out.infoChat = out.bot && cfg.Bot.InfoChatID != 0
	out.alerting = cfg.Alerting.Enabled
	if out.alerting && !out.telegram && !out.infoChat {
		a.Logger.Warn().Msg("no alert delivery configured (alerting.telegram or bot.info_chat_id); alerts and digests are logged only")
	}
	return out, nil
}

func (a *App) newFetcher() *fetcher.Source {
	return fetcher.NewSource(fetcher.SourceOptions{
		APIAddress: a.Config.Source.APIAddress,
		Currencies: a.Config.Source.Currencies,
		Timeout:    a.Config.Source.RequestTimeout,
		UserAgent:  userAgent(a.Config.Source.UserAgent),
	}, a.Logger)
}

func userAgent(configured string) string {
	if configured == "" {
		configured = "cryptalert"
	}
	return fmt.Sprintf("%s/%s", configured, version.Version)
}

func (a *App) newTelegramNotifier() *alerting.TelegramNotifier {
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
}

// newNotifier picks the delivery path for alerts and digests. The chat bot delivers to
// its info chat when configured; with neither, notifications are logged.
func (a *App) newNotifier(bot *chatbot.Bot) alerting.Notifier {
	var targets alerting.Multi
	if a.Config.Alerting.Telegram.Enabled {
		targets = append(targets, a.newTelegramNotifier())
	}
	if bot != nil && a.Config.Bot.InfoChatID != 0 {
		targets = append(targets, bot)
	}
	switch len(targets) {
	case 0:
		return alerting.NewLogNotifier(a.Logger)
	case 1:
		return targets[0]
	default:
		return targets
	}
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
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) openMirror(ctx context.Context) (*cache.RedisMirror, func(), error) {
	if a.Config.Redis.Addr == "" {
		return nil, nil, nil
	}
	mirror, err := cache.NewRedisMirror(ctx, a.Config.Redis, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	return mirror, func() { _ = mirror.Close() }, nil
}

func (a *App) engineOptions() (service.EngineOptions, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return service.EngineOptions{}, err
	}
	cfg := a.Config.Alerting
	return service.EngineOptions{
		Currencies:     a.Config.Source.Currencies,
		ShortThreshold: decimal.NewFromFloat(cfg.ShortThresholdPct),
		LongThreshold:  decimal.NewFromFloat(cfg.LongThresholdPct),
		Field:          a.Config.SampleField(),
		SampleInterval: a.Config.SampleCadence(),
		MaxSampleGap:   cfg.MaxSampleGap,
		ActiveHours:    scheduler.ActiveHours{Start: cfg.ActiveHours.Start, End: cfg.ActiveHours.End},
		Location:       loc,
		LockKey:        cfg.AdvisoryLockKey,
	}, nil
}

func (a *App) newScheduler(name string, interval time.Duration, gate scheduler.GateFunc, loc *time.Location, tickOnStart bool) *scheduler.Scheduler {
	cfg := a.Config.Alerting
	return scheduler.New(scheduler.Options{
		Name:          name,
		Interval:      interval,
		AlignToStart:  cfg.AlignToBucket,
		StartupDelay:  cfg.StartupDelay,
		ActiveHours:   scheduler.ActiveHours{Start: cfg.ActiveHours.Start, End: cfg.ActiveHours.End},
		QuietInterval: cfg.QuietInterval,
		Location:      loc,
		Gate:          gate,
		TickOnStart:   tickOnStart,
	}, a.Logger)
}

func (a *App) header() string {
	return fmt.Sprintf("%s %s | %s | Ctrl-C to quit", a.Config.App.Name, version.Version, a.Config.App.Environment)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	outs, err := a.resolveOutputs()
	if err != nil {
		return err
	}

	archive, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if archive == nil {
		a.Logger.Warn().Msg("database.dsn not configured; archive disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	mirror, closeMirror, err := a.openMirror(ctx)
	if err != nil {
		return err
	}
	if closeMirror != nil {
		defer closeMirror()
	}

	store := market.NewStore()
	trend := market.NewTrendTracker()

	var sinks []service.SnapshotSink
	if archive != nil {
		sinks = append(sinks, archive)
	}
	if mirror != nil {
		sinks = append(sinks, mirror)
	}
	loop := service.NewFetchLoop(a.newFetcher(), store, a.Config.Source.PingInterval, a.Logger, sinks...)

	opts := service.Options{FetchLoop: loop}

	var bot *chatbot.Bot
	if outs.bot {
		bot, err = chatbot.NewBot(chatbot.Options{
			Token:       a.Config.Bot.Token,
			InfoChatID:  a.Config.Bot.InfoChatID,
			PollTimeout: a.Config.Bot.PollTimeout,
		}, &chatbot.Handler{
			Name:    a.Config.App.Name,
			Version: version.Version,
			Store:   store,
			Trend:   trend,
			Started: time.Now(),
		}, a.Logger)
		if err != nil {
			return err
		}
		opts.Workers = append(opts.Workers, bot)
	}

	if outs.alerting {
		engineOpts, err := a.engineOptions()
		if err != nil {
			return err
		}

		queue := alerting.NewQueue(a.Config.Alerting.QueueSize, a.newNotifier(bot), a.Logger)
		opts.Workers = append(opts.Workers, queue)

		deps := service.EngineDeps{
			Store:    store,
			Ring:     history.NewRing(),
			Trend:    trend,
			Notifier: queue,
		}
		if archive != nil {
			deps.Audit = archive
			deps.Locker = archive
		}
		opts.Engine = service.NewAlertEngine(engineOpts, deps, a.Logger)

		gate := service.StartGate(store, queue)
		opts.Gate = gate
		opts.SampleOnPublish = a.Config.Alerting.SampleOnPublish
		if !opts.SampleOnPublish {
			opts.Sampler = a.newScheduler("sample", a.Config.Alerting.SampleInterval, gate, engineOpts.Location, false)
		}
		if a.Config.Alerting.DigestEnabled {
			opts.Digester = a.newScheduler("digest", a.Config.Alerting.DigestInterval, gate, engineOpts.Location, true)
		}
	}

	if archive != nil && a.Config.Database.Retention > 0 {
		opts.Workers = append(opts.Workers, service.NewRetentionJob(archive, a.Config.Database.Retention, time.Hour, a.Logger))
	}

	if outs.tui {
		opts.Workers = append(opts.Workers, tui.NewDisplay(store, a.Stdout, a.Config.TUI.RefreshInterval, a.header(), a.Logger))
	}

	svc := service.New(opts, a.Logger)

	a.Logger.Info().
		Strs("currencies", a.Config.Source.Currencies).
		Bool("telegram", outs.telegram).
		Bool("bot", outs.bot).
		Bool("tui", outs.tui).
		Bool("alerting", outs.alerting).
		Msg("starting monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting archived quotes.
type ExportOptions struct {
	Asset     string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Asset  string
	Alerts bool
}

// RatesOptions configure the rates command.
type RatesOptions struct {
	FromMirror bool
}

// SimulateOptions configure the simulate-alert command.
type SimulateOptions struct {
	Asset   string
	Samples []decimal.Decimal
}

// PruneOptions configure the prune command.
type PruneOptions struct {
	OlderThan time.Duration
	DryRun    bool
}
