// Package main provides the entry point for the papervoice CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/papervoice/internal/blob"
	"github.com/dgnsrekt/papervoice/internal/cache"
	"github.com/dgnsrekt/papervoice/internal/config"
	"github.com/dgnsrekt/papervoice/internal/document"
	"github.com/dgnsrekt/papervoice/internal/engine"
	"github.com/dgnsrekt/papervoice/internal/player"
	"github.com/dgnsrekt/papervoice/internal/producer"
	"github.com/dgnsrekt/papervoice/internal/scheduler"
	"github.com/dgnsrekt/papervoice/internal/session"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	voice      string
	speed      float64
	model      string
	redisURL   string
	skipCache  bool
	quiet      bool
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "papervoice [FILE]",
		Short: "Read research papers aloud, simplified",
		Long: "\nPapervoice reads a plain-text document aloud. Each paragraph is" +
			" rewritten into plain spoken English, synthesized sentence by" +
			" sentence, and played strictly in order while the next sentences" +
			" are prepared in the background.",
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug {
				log.SetLevel(log.DebugLevel)
			}
		},
		RunE: execute,
	}
)

// sourceFromArg builds a document source for the argument. "-" or no
// argument reads stdin.
func sourceFromArg(arg string) (document.Source, error) {
	if arg == "" || arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return document.NewTextSource("stdin", string(data)), nil
	}
	if _, err := os.Stat(arg); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", arg, err)
	}
	return document.NewFileSource(arg), nil
}

func execute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)

	if cfg.APIKey == "" {
		return fmt.Errorf("no API key: set OPENAI_API_KEY or api_key in the config file")
	}

	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}
	source, err := sourceFromArg(arg)
	if err != nil {
		return err
	}

	sess, err := buildSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := sess.Start(ctx, source); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan error, 1)
	go func() { done <- sess.Wait(ctx) }()

	if !quiet {
		go displayStatus(ctx, sess)
	}

	select {
	case <-sigCh:
		log.Info("interrupted, stopping")
		sess.Stop()
		<-done
	case err := <-done:
		if err != nil {
			return err
		}
	}

	printSummary(sess)
	return nil
}

// applyFlags lets explicit command line flags win over the config file
// and environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("voice") {
		cfg.Voice = voice
	}
	if cmd.Flags().Changed("speed") {
		cfg.Speed = speed
	}
	if cmd.Flags().Changed("model") {
		cfg.SimplifyModel = model
	}
	if cmd.Flags().Changed("redis") {
		cfg.RedisURL = redisURL
	}
	if cmd.Flags().Changed("no-cache") {
		cfg.CacheSkip = skipCache
	}
}

// buildSession wires the stores, engines and audio device from cfg.
func buildSession(cfg config.Config) (*session.Session, error) {
	store := buildStore(cfg)

	blobs, err := blob.NewStore(cfg.AudioDir, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening audio store: %w", err)
	}

	client := engine.NewClient(cfg.APIKey, cfg.BaseURL)
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)

	simplifyConfig := engine.DefaultSimplifierConfig()
	simplifyConfig.Model = cfg.SimplifyModel
	simplifyConfig.MaxTokens = cfg.MaxTokens
	simplifyConfig.Temperature = cfg.Temperature

	synthConfig := engine.DefaultSynthesizerConfig()
	synthConfig.Model = cfg.SpeechModel
	synthConfig.Voice = cfg.Voice
	synthConfig.Speed = cfg.Speed

	return session.New(session.Deps{
		Store:       store,
		Blobs:       blobs,
		Simplifier:  engine.NewOpenAISimplifier(client, simplifyConfig, limiter),
		Synthesizer: engine.NewOpenAISynthesizer(client, synthConfig, limiter),
		NewDevice: func() (player.Device, error) {
			return player.NewOtoDevice(player.Config{
				SampleRate: cfg.SampleRate,
				Channels:   1,
				BitDepth:   16,
			})
		},
		BufferCapacity: cfg.BufferCapacity,
		Producer: producer.Config{
			CacheTTL:      cfg.CacheTTL,
			SynthAttempts: cfg.SynthAttempts,
			RetryDelay:    cfg.RetryDelay,
		},
		Scheduler: scheduler.DefaultConfig(),
	}), nil
}

// buildStore picks the cache backend. Redis failures fall back to the
// in-memory store so a dead cache never blocks playback.
func buildStore(cfg config.Config) cache.Store {
	if cfg.CacheSkip {
		log.Debug("caching disabled")
		return cache.NewMemoryStore()
	}
	if cfg.RedisURL == "" {
		return cache.NewMemoryStore()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := cache.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, using in-memory cache", "err", err)
		return cache.NewMemoryStore()
	}
	return store
}

// displayStatus prints the sentence being spoken whenever it changes.
func displayStatus(ctx context.Context, sess *session.Session) {
	last := -1
	for snap := range sess.Status(ctx, 250*time.Millisecond) {
		if snap.Rank < 0 || snap.Rank == last {
			continue
		}
		last = snap.Rank
		fmt.Printf("  %s\n", snap.Sentence)
	}
}

func printSummary(sess *session.Session) {
	snap := sess.Snapshot()
	if snap.PlayedSegments == 0 {
		return
	}
	log.Info("finished",
		"segments", snap.PlayedSegments,
		"prompt_tokens", humanize.Comma(snap.PromptTokens),
		"completion_tokens", humanize.Comma(snap.CompletionTokens),
		"chars", humanize.Comma(snap.ReceivedChars))
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetReportTimestamp(false)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&voice, "voice", "v", "alloy", "speech voice")
	rootCmd.Flags().Float64VarP(&speed, "speed", "x", 1.0, "speech speed (0.25 to 4.0)")
	rootCmd.Flags().StringVarP(&model, "model", "m", "gpt-4o-mini", "model used for simplification")
	rootCmd.Flags().StringVar(&redisURL, "redis", "", "redis URL for the shared cache")
	rootCmd.Flags().BoolVar(&skipCache, "no-cache", false, "bypass the simplification and audio caches")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print sentences while they play")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	rootCmd.AddCommand(configCmd)
}
