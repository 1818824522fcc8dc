package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/Diego-DPL/zypace/internal/envstruct"
	"github.com/Diego-DPL/zypace/internal/errorreport"
	"github.com/Diego-DPL/zypace/internal/errors"
	"github.com/Diego-DPL/zypace/internal/flightrecorder"
	"github.com/Diego-DPL/zypace/internal/logging"
	"github.com/Diego-DPL/zypace/internal/plan"
	"github.com/Diego-DPL/zypace/internal/reconcile"
	"github.com/Diego-DPL/zypace/internal/runnersession"
	"github.com/Diego-DPL/zypace/internal/sqlite"
	"github.com/Diego-DPL/zypace/internal/strava"
	"github.com/alexedwards/scs/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type application struct {
	logger         *slog.Logger
	sessions       *scs.SessionManager
	runners        *runnersession.Manager
	plans          *plan.Service
	reconciler     *reconcile.Service
	reporter       *errorreport.Reporter
	flightRecorder *flightrecorder.Service
	markdown       goldmark.Markdown
	secureCookies  bool
	// slowTimeout bounds the requests that wait for the generation service or the activity provider.
	slowTimeout time.Duration
}

type config struct {
	// Addr is the address to listen on. It's possible to choose the address dynamically with localhost:0.
	Addr string `env:"ZYPACE_ADDR" envDefault:"localhost:8081"`
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ethereal in-memory database.
	SqliteURL string `env:"ZYPACE_SQLITE_URL" envDefault:"./zypace.sqlite3"`
	// SecureCookies must only be disabled when serving plain HTTP outside localhost.
	SecureCookies bool `env:"ZYPACE_SECURE_COOKIES" envDefault:"true"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-5"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:""`
	GeminiAPIKey  string `env:"GEMINI_API_KEY" envDefault:""`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	// GenerationTimeout bounds each candidate model call.
	GenerationTimeout time.Duration `env:"ZYPACE_GENERATION_TIMEOUT" envDefault:"60s"`

	StravaClientID     string        `env:"STRAVA_CLIENT_ID" envDefault:""`
	StravaClientSecret string        `env:"STRAVA_CLIENT_SECRET" envDefault:""`
	StravaBaseURL      string        `env:"STRAVA_BASE_URL" envDefault:"https://www.strava.com"`
	StravaRedirectURL  string        `env:"STRAVA_REDIRECT_URL" envDefault:"http://localhost:8081/strava/callback"`
	StravaTimeout      time.Duration `env:"STRAVA_TIMEOUT" envDefault:"30s"`

	MatchDistanceTolerance float64 `env:"ZYPACE_MATCH_DISTANCE_TOLERANCE" envDefault:"0.25"`
	MatchFallbackMinKm     float64 `env:"ZYPACE_MATCH_FALLBACK_MIN_KM" envDefault:"1.0"`
	MatchLookbackDays      int     `env:"ZYPACE_MATCH_LOOKBACK_DAYS" envDefault:"30"`
	MatchLookaheadDays     int     `env:"ZYPACE_MATCH_LOOKAHEAD_DAYS" envDefault:"7"`

	SentryDSN         string `env:"SENTRY_DSN" envDefault:""`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`
	// TracesDir enables the flight recorder. Traces of timed out requests are written there.
	TracesDir string `env:"ZYPACE_TRACES_DIR" envDefault:""`
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var (
		cancel context.CancelFunc
		err    error
	)

	ctx, cancel = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err = envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	reporter, err := errorreport.New(ctx, errorreport.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     release(),
	}, logger)
	if err != nil {
		return errors.Wrap(err, "error reporter")
	}
	defer reporter.Flush(defaultTimeout)

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open db", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "close db", errors.SlogError(closeErr))
		}
	}()
	logger.LogAttrs(ctx, slog.LevelInfo, "connected to db")

	strategies, err := generationStrategies(cfg)
	if err != nil {
		return errors.Wrap(err, "generation strategies")
	}
	if len(strategies) == 0 {
		logger.LogAttrs(ctx, slog.LevelWarn, "no generation service configured, plans come from the periodization planner")
	}
	generator := plan.NewGenerator(logger, cfg.GenerationTimeout, reporter.Report, strategies...)

	var provider reconcile.Provider
	stravaClient, err := strava.NewClient(strava.Config{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		BaseURL:      cfg.StravaBaseURL,
		RedirectURL:  cfg.StravaRedirectURL,
		Timeout:      cfg.StravaTimeout,
	}, logger)
	switch {
	case errors.Is(err, strava.ErrNotConfigured):
		logger.LogAttrs(ctx, slog.LevelWarn, "activity provider not configured, sync is disabled")
	case err != nil:
		return errors.Wrap(err, "strava client")
	default:
		provider = stravaClient
	}

	var recorder *flightrecorder.Service
	if cfg.TracesDir != "" {
		if recorder, err = flightrecorder.New(flightrecorder.Config{
			Logger:          logger,
			MinAge:          0,
			MaxBytes:        0,
			TracesDirectory: cfg.TracesDir,
		}); err != nil {
			return errors.Wrap(err, "flight recorder")
		}
		if err = recorder.Start(ctx); err != nil {
			return errors.Wrap(err, "start flight recorder")
		}
		defer recorder.Stop(context.WithoutCancel(ctx))
	}

	sessions := runnersession.NewSessionManager(db, cfg.SecureCookies)
	app := application{
		logger:   logger,
		sessions: sessions,
		runners:  runnersession.New(logger, sessions, db),
		plans:    plan.NewService(db, logger, generator, nil),
		reconciler: reconcile.NewService(db, logger, reconcile.Config{
			Provider: provider,
			Match: reconcile.MatchConfig{
				DistanceTolerance: cfg.MatchDistanceTolerance,
				FallbackMinKm:     cfg.MatchFallbackMinKm,
				TimeMinKm:         0,
				LookbackDays:      cfg.MatchLookbackDays,
				LookaheadDays:     cfg.MatchLookaheadDays,
			},
			Report: reporter.Report,
			Now:    nil,
		}),
		reporter:       reporter,
		flightRecorder: recorder,
		markdown:       goldmark.New(goldmark.WithExtensions(extension.GFM)),
		secureCookies:  cfg.SecureCookies,
		slowTimeout:    slowTimeout(cfg.GenerationTimeout, len(strategies), cfg.StravaTimeout),
	}

	if err = app.configureAndStartServer(ctx, cfg.Addr, app.routes()); err != nil {
		return errors.Wrap(err, "start server")
	}
	return nil
}

// generationStrategies returns the candidate chain: the configured OpenAI model followed by the default ones, then
// Gemini. Services without a key are skipped.
func generationStrategies(cfg config) ([]plan.Strategy, error) {
	var strategies []plan.Strategy
	if cfg.OpenAIAPIKey != "" {
		models := append([]string{cfg.OpenAIModel}, plan.DefaultOpenAIModels...)
		openAI, err := plan.NewOpenAIStrategies(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, models...)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, openAI...)
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := plan.NewGeminiStrategy(cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, gemini)
	}
	return strategies, nil
}

// slowTimeout leaves room for every candidate to time out before the fallback runs.
func slowTimeout(generationTimeout time.Duration, candidates int, providerTimeout time.Duration) time.Duration {
	const minimum = 30 * time.Second
	return max(generationTimeout*time.Duration(candidates)+defaultTimeout, providerTimeout*2, minimum) //nolint:mnd // token refresh and one page.
}

func release() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			return setting.Value
		}
	}
	return info.Main.Version
}

func main() {
	ctx := context.Background()
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelDebug,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure starting application", errors.SlogError(err))
		os.Exit(1)
	}
}
