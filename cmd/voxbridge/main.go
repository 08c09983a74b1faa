// Command voxbridge runs the real-time voice translation relay: a websocket
// server that pairs two speakers of different languages and relays their
// speech through ASR, translation, and synthesis providers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxbridge/voxbridge/internal/asr"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/health"
	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/internal/pipeline"
	"github.com/voxbridge/voxbridge/internal/reaper"
	"github.com/voxbridge/voxbridge/internal/registry"
	"github.com/voxbridge/voxbridge/internal/resilience"
	"github.com/voxbridge/voxbridge/internal/synth"
	"github.com/voxbridge/voxbridge/internal/transport"
	asrprov "github.com/voxbridge/voxbridge/pkg/provider/asr"
	"github.com/voxbridge/voxbridge/pkg/provider/asr/assemblyai"
	"github.com/voxbridge/voxbridge/pkg/provider/asr/chunked"
	"github.com/voxbridge/voxbridge/pkg/provider/asr/deepgram"
	"github.com/voxbridge/voxbridge/pkg/provider/asr/whisper"
	"github.com/voxbridge/voxbridge/pkg/provider/mt"
	"github.com/voxbridge/voxbridge/pkg/provider/mt/deepl"
	"github.com/voxbridge/voxbridge/pkg/provider/mt/openai"
	"github.com/voxbridge/voxbridge/pkg/provider/tts"
	"github.com/voxbridge/voxbridge/pkg/provider/tts/elevenlabs"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}

	initLogger(cfg.Server.LogLevel)
	log := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		log.Error("telemetry init failed", "error", err)
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			log.Warn("telemetry shutdown", "error", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	asrClient, err := buildASR(cfg, metrics)
	if err != nil {
		log.Error("asr setup failed", "error", err)
		return 1
	}
	translator, err := buildTranslator(cfg, metrics)
	if err != nil {
		log.Error("translation setup failed", "error", err)
		return 1
	}
	ttsProvider, err := buildTTS(cfg)
	if err != nil {
		log.Error("tts setup failed", "error", err)
		return 1
	}
	synthClient := synth.NewClient(cfg.Providers.TTS.Name, ttsProvider, cfg.Synthesis, metrics)

	reg := registry.New(cfg.Server.ReconnectWindow.Std())
	co := pipeline.NewCoordinator(ctx, *cfg, reg, asrClient, translator, synthClient, metrics)

	hh := health.New(co.Snapshot,
		health.ConfiguredCheck("asr", cfg.Providers.ASR.Primary.Configured() || cfg.Providers.ASR.Batch.Configured()),
		health.ConfiguredCheck("mt", cfg.Providers.MT.Primary.Configured()),
		health.ConfiguredCheck("tts", cfg.Providers.TTS.Configured()),
	)

	rp := reaper.New(cfg.Reaper.Cadence.Std())
	rp.Register("asr-handles", func(now time.Time) int { return asrClient.Sweep(now, cfg.Reaper.ASRIdle.Std()) })
	rp.Register("synthesis", func(now time.Time) int { return synthClient.Sweep(now, cfg.Reaper.TTSIdle.Std()) })
	rp.Register("sessions", co.SweepSessions)

	srv := transport.NewServer(cfg.Server, co, hh)

	log.Info("voxbridge starting",
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"asr_primary", cfg.Providers.ASR.Primary.Name,
		"asr_secondary", cfg.Providers.ASR.Secondary.Name,
		"asr_batch", cfg.Providers.ASR.Batch.Name,
		"mt_primary", cfg.Providers.MT.Primary.Name,
		"mt_fallback", cfg.Providers.MT.Fallback.Name,
		"tts", cfg.Providers.TTS.Name,
		"batch_languages", strings.Join(cfg.Routing.BatchLanguages, ","))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return rp.Run(gctx) })

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		return 1
	}
	log.Info("voxbridge stopped")
	return 0
}

// loadConfig reads the file when given, otherwise runs on documented
// defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromReader(strings.NewReader(""))
	}
	return config.Load(path)
}

func initLogger(level config.LogLevel) {
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
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// buildASR assembles the recognition route: streaming providers in priority
// order, with the batch recognizer doubling as the chunked REST fallback.
func buildASR(cfg *config.Config, metrics *observe.Metrics) (*asr.Client, error) {
	var streaming []asr.Named
	for _, entry := range []config.ProviderEntry{cfg.Providers.ASR.Primary, cfg.Providers.ASR.Secondary} {
		if !entry.Configured() {
			continue
		}
		p, err := newStreamingASR(entry)
		if err != nil {
			return nil, err
		}
		streaming = append(streaming, asr.Named{Name: entry.Name, Provider: p})
	}

	acfg := asr.Config{
		Streaming:      streaming,
		BatchLanguages: cfg.Routing.BatchLanguages,
	}

	if entry := cfg.Providers.ASR.Batch; entry.Configured() {
		if entry.Name != "whisper" {
			return nil, fmt.Errorf("unknown batch asr provider %q", entry.Name)
		}
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		rec, err := whisper.New(entry.BaseURL, opts...)
		if err != nil {
			return nil, err
		}
		ch, err := chunked.New(rec)
		if err != nil {
			return nil, err
		}
		acfg.Batch = &asr.Named{Name: "whisper", Provider: ch}
		acfg.Fallback = &asr.Named{Name: "chunked", Provider: ch}
	}

	if len(acfg.Streaming) == 0 && acfg.Batch == nil {
		return nil, fmt.Errorf("no asr provider configured")
	}
	return asr.NewClient(acfg, metrics), nil
}

func newStreamingASR(entry config.ProviderEntry) (asrprov.Provider, error) {
	switch entry.Name {
	case "deepgram":
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		return deepgram.New(entry.APIKey, opts...)
	case "assemblyai":
		return assemblyai.New(entry.APIKey)
	default:
		return nil, fmt.Errorf("unknown streaming asr provider %q", entry.Name)
	}
}

// buildTranslator assembles the translation fallback chain.
func buildTranslator(cfg *config.Config, metrics *observe.Metrics) (*mt.Client, error) {
	chain := resilience.NewChain[mt.Provider](resilience.BreakerConfig{})
	for _, entry := range []config.ProviderEntry{cfg.Providers.MT.Primary, cfg.Providers.MT.Fallback} {
		if !entry.Configured() {
			continue
		}
		p, err := newMTProvider(entry)
		if err != nil {
			return nil, err
		}
		chain.Add(entry.Name, p)
	}
	if chain.Len() == 0 {
		return nil, fmt.Errorf("no translation provider configured")
	}
	slog.Info("translation chain assembled", "providers", strings.Join(chain.Names(), ","))
	return pipeline.NewChainTranslator(chain, cfg.Translation, metrics)
}

func newMTProvider(entry config.ProviderEntry) (mt.Provider, error) {
	switch entry.Name {
	case "deepl":
		var opts []deepl.Option
		if entry.BaseURL != "" {
			opts = append(opts, deepl.WithBaseURL(entry.BaseURL))
		}
		return deepl.New(entry.APIKey, opts...)
	case "openai":
		var opts []openai.Option
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		return openai.New(entry.APIKey, opts...)
	default:
		return nil, fmt.Errorf("unknown translation provider %q", entry.Name)
	}
}

func buildTTS(cfg *config.Config) (tts.Provider, error) {
	entry := cfg.Providers.TTS
	if !entry.Configured() {
		return nil, fmt.Errorf("no tts provider configured")
	}
	if entry.Name != "elevenlabs" {
		return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
	var opts []elevenlabs.Option
	if entry.Model != "" {
		opts = append(opts, elevenlabs.WithModel(entry.Model))
	}
	if entry.BaseURL != "" {
		opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
	}
	return elevenlabs.New(entry.APIKey, opts...)
}
