// Command voicesync synthesizes an episode script into per-sentence audio
// clips and a word-timing manifest for the video renderer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/withleedh/learning-youtube-sub000/internal/config"
	"github.com/withleedh/learning-youtube-sub000/internal/health"
	"github.com/withleedh/learning-youtube-sub000/internal/keypool"
	"github.com/withleedh/learning-youtube-sub000/internal/observe"
	"github.com/withleedh/learning-youtube-sub000/internal/retry"
	"github.com/withleedh/learning-youtube-sub000/internal/synthesis"
	"github.com/withleedh/learning-youtube-sub000/pkg/manifest"
	"github.com/withleedh/learning-youtube-sub000/pkg/script"
	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
	"github.com/withleedh/learning-youtube-sub000/pkg/tts/edge"
	"github.com/withleedh/learning-youtube-sub000/pkg/tts/elevenlabs"
	"github.com/withleedh/learning-youtube-sub000/pkg/tts/googletts"
	"github.com/withleedh/learning-youtube-sub000/pkg/tts/mock"
	"github.com/withleedh/learning-youtube-sub000/pkg/types"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	scriptPath := flag.String("script", "script.json", "path to the episode script JSON")
	overwrite := flag.Bool("overwrite", false, "re-synthesize audio files that already exist")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicesync: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicesync: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Run.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicesync starting",
		"version", version,
		"config", *configPath,
		"script", *scriptPath,
		"log_level", cfg.Run.LogLevel,
	)

	// ── Credentials and key pool ──────────────────────────────────────────────
	creds, err := config.LoadCredentials()
	if err != nil {
		slog.Error("failed to load credentials", "err", err)
		return 1
	}

	var pool *keypool.Pool
	if cfg.Providers.TTS.Name == "google" {
		keys := creds.GoogleAPIKeys
		if len(keys) == 0 && cfg.Providers.TTS.APIKey != "" {
			keys = []string{cfg.Providers.TTS.APIKey}
		}
		if len(keys) == 0 {
			slog.Error("no API keys for the google provider — set GOOGLE_TTS_API_KEYS")
			return 1
		}
		if cfg.Run.KeyStatePath != "" {
			pool, err = keypool.Load(cfg.Run.KeyStatePath, "google", keys)
			if err != nil {
				slog.Error("failed to load key rotation state", "path", cfg.Run.KeyStatePath, "err", err)
				return 1
			}
		} else {
			pool = keypool.New("google", keys)
		}
		slog.Info("key pool ready", "keys", pool.Size(), "remaining", pool.Remaining())
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, creds, pool)

	provider, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to create tts provider", "name", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "tts", "name", provider.Name())

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Script and cast ───────────────────────────────────────────────────────
	scr, err := script.Load(*scriptPath)
	if err != nil {
		slog.Error("failed to load script", "err", err)
		return 1
	}

	seed := cfg.Run.Seed
	if seed == 0 {
		seed = synthesis.SeedFromTitle(scr.Title)
	}
	cast, err := synthesis.SelectCast(cfg.Speakers, provider.Name(), seed)
	if err != nil {
		slog.Error("failed to cast speakers", "err", err)
		return 1
	}
	for _, sp := range cfg.Speakers {
		if v, ok := cast.Voice(sp.Name); ok {
			slog.Info("speaker cast", "speaker", sp.Name, "voice", v.ID, "pitch", v.PitchShift)
		}
	}

	runID := "run-" + uuid.New().String()[:8]

	// ── Telemetry ─────────────────────────────────────────────────────────────
	if cfg.Run.MetricsAddr != "" {
		otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    "voicesync",
			ServiceVersion: version,
			RunID:          runID,
		})
		if err != nil {
			slog.Error("failed to initialise telemetry", "err", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelShutdown(sctx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()
	}
	metrics := observe.DefaultMetrics()

	// ── Synthesizer ───────────────────────────────────────────────────────────
	syn, err := synthesis.New(synthesis.Options{
		Provider:          provider,
		Cast:              cast,
		Speeds:            buildSpeeds(cfg),
		Mode:              cfg.Run.Mode,
		OutputDir:         cfg.Run.OutputDir,
		Overwrite:         cfg.Run.Overwrite || *overwrite,
		Concurrency:       cfg.Run.Concurrency,
		RequestsPerMinute: cfg.Run.RequestsPerMinute,
		Retry: retry.Config{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			BaseDelay:      cfg.Retry.BaseDelay.Std(),
			AttemptTimeout: cfg.Retry.AttemptTimeout.Std(),
		},
		WordsPerMinute: cfg.Estimator.WordsPerMinute,
		Metrics:        metrics,
		RunID:          runID,
	})
	if err != nil {
		slog.Error("failed to initialise synthesizer", "err", err)
		return 1
	}

	// ── Operational endpoint (optional) ───────────────────────────────────────
	if cfg.Run.MetricsAddr != "" {
		checks := health.New(
			health.Checker{Name: "keys", Check: func(context.Context) error {
				if pool != nil && pool.Remaining() == 0 {
					return errors.New("all API keys exhausted")
				}
				return nil
			}},
			health.Checker{Name: "output", Check: func(context.Context) error {
				info, err := os.Stat(cfg.Run.OutputDir)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					return fmt.Errorf("%s is not a directory", cfg.Run.OutputDir)
				}
				return nil
			}},
		)
		checks.AttachProgress(syn)

		mux := http.NewServeMux()
		checks.Register(mux)
		mux.Handle("GET /metrics", promhttp.Handler())

		opsSrv := &http.Server{
			Addr:    cfg.Run.MetricsAddr,
			Handler: observe.Middleware(metrics)(mux),
		}
		go func() {
			slog.Info("operational endpoint listening", "addr", cfg.Run.MetricsAddr)
			if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("operational endpoint error", "err", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := opsSrv.Shutdown(sctx); err != nil {
				slog.Warn("operational endpoint shutdown error", "err", err)
			}
		}()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, provider.Name(), len(scr.Sentences))

	// ── Run ───────────────────────────────────────────────────────────────────
	m, sum, runErr := syn.Run(ctx, scr)

	if pool != nil && cfg.Run.KeyStatePath != "" {
		if err := pool.Save(cfg.Run.KeyStatePath); err != nil {
			slog.Warn("failed to save key rotation state", "path", cfg.Run.KeyStatePath, "err", err)
		}
	}

	if m == nil {
		slog.Error("synthesis failed", "err", runErr)
		return 1
	}

	// A cancelled run still writes its manifest: it covers exactly the
	// sentences that finished.
	if err := manifest.Write(cfg.Run.ManifestPath, m); err != nil {
		slog.Error("failed to write manifest", "path", cfg.Run.ManifestPath, "err", err)
		return 1
	}
	slog.Info("manifest written",
		"path", cfg.Run.ManifestPath,
		"entries", len(m.Entries),
		"total_duration_s", m.TotalDuration,
	)

	if len(sum.Failed) > 0 {
		reportPath := filepath.Join(filepath.Dir(cfg.Run.ManifestPath), "failures.json")
		if err := synthesis.WriteFailureReport(reportPath, sum.Failed); err != nil {
			slog.Error("failed to write failure report", "path", reportPath, "err", err)
		} else {
			slog.Warn("some units failed", "count", len(sum.Failed), "report", reportPath)
		}
	}

	switch {
	case runErr != nil:
		slog.Warn("run ended early", "err", runErr)
		return 1
	case len(sum.Failed) > 0:
		return 1
	default:
		slog.Info("goodbye")
		return 0
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// builtinProviders lists the TTS implementations that ship with voicesync.
// Used for startup logging.
var builtinProviders = map[string][]string{
	"tts": {"google", "edge", "elevenlabs", "mock"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Factories close over the environment credentials and the key pool so that
// secrets never pass through the YAML config structures.
func registerBuiltinProviders(reg *config.Registry, creds *config.Credentials, pool *keypool.Pool) {
	reg.RegisterTTS("google", func(entry config.ProviderEntry) (tts.Provider, error) {
		if pool == nil {
			return nil, errors.New("google provider requires API keys — set GOOGLE_TTS_API_KEYS")
		}
		var opts []googletts.Option
		if entry.BaseURL != "" {
			opts = append(opts, googletts.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.StringOption("language"); lang != "" {
			opts = append(opts, googletts.WithLanguage(lang))
		}
		if enc := entry.StringOption("audio_encoding"); enc != "" {
			opts = append(opts, googletts.WithAudioEncoding(enc))
		}
		return googletts.New(pool, opts...)
	})

	reg.RegisterTTS("edge", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []edge.Option
		if entry.BaseURL != "" {
			opts = append(opts, edge.WithBaseURL(entry.BaseURL))
		}
		if format := entry.StringOption("output_format"); format != "" {
			opts = append(opts, edge.WithOutputFormat(format))
		}
		return edge.New(opts...), nil
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		key := creds.ElevenLabsKey
		if key == "" {
			key = entry.APIKey
		}
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if format := entry.StringOption("output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(key, opts...)
	})

	reg.RegisterTTS("mock", func(entry config.ProviderEntry) (tts.Provider, error) {
		return &mock.Provider{}, nil
	})

	// Debug log of all registered providers.
	for kind, names := range builtinProviders {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildSpeeds converts the configured presets into the synthesis order.
func buildSpeeds(cfg *config.Config) []types.SpeedVariant {
	speeds := make([]types.SpeedVariant, len(cfg.Speeds))
	for i, sp := range cfg.Speeds {
		speeds[i] = types.SpeedVariant{Label: sp.Label, Rate: sp.Rate}
	}
	return speeds
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, providerName string, sentences int) {
	providerValue := providerName
	if cfg.Providers.TTS.Model != "" {
		providerValue = providerName + " / " + cfg.Providers.TTS.Model
	}
	metricsValue := cfg.Run.MetricsAddr
	if metricsValue == "" {
		metricsValue = "(disabled)"
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      voicesync — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", providerValue)
	printRow("Mode", string(cfg.Run.Mode))
	printRow("Sentences", fmt.Sprintf("%d", sentences))
	printRow("Speakers", fmt.Sprintf("%d", len(cfg.Speakers)))
	printRow("Speeds", fmt.Sprintf("%d", len(cfg.Speeds)))
	printRow("Concurrency", fmt.Sprintf("%d", cfg.Run.Concurrency))
	printRow("Output dir", cfg.Run.OutputDir)
	printRow("Metrics", metricsValue)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not set)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s: %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
