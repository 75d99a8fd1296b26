// Command wavtranslate translates the speech in a recording into one target
// language and optionally saves the translation to a text file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wav-translate/internal/app"
	"wav-translate/internal/config"
	"wav-translate/internal/events"
	apphttp "wav-translate/internal/http"
	"wav-translate/internal/observability"
	"wav-translate/internal/observability/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var errUsage = errors.New("usage error")

type options struct {
	recording   string
	to          string
	from        string
	out         string
	candidates  string
	provider    string
	metricsAddr string
	logLevel    string
	timeout     time.Duration
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// parseArgs accepts flags before and after the recording path.
func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options

	flags := flag.NewFlagSet("wavtranslate", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: wavtranslate <recording.wav> --to <lang> [--from-lang <lang>] [--out <path>]")
		flags.PrintDefaults()
	}
	flags.StringVar(&opts.to, "to", "", "Target language (e.g. en, hi, mr, fr, de, es)")
	flags.StringVar(&opts.from, "from-lang", "", "Source language (e.g. en-US). If omitted, auto-detect")
	flags.StringVar(&opts.out, "out", "", "Optional path to save the translated text")
	flags.StringVar(&opts.candidates, "candidates", "", "Comma separated source languages for auto-detection")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Session timeout (default from TRANSLATE_TIMEOUT)")
	flags.StringVar(&opts.provider, "provider", "", "Speech provider: google or mock (default from STT_PROVIDER)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve /metrics and health endpoints on this address")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	var positional []string
	for {
		if err := flags.Parse(args); err != nil {
			return opts, err
		}
		args = flags.Args()
		if len(args) == 0 {
			break
		}
		positional = append(positional, args[0])
		args = args[1:]
	}

	if len(positional) != 1 {
		flags.Usage()
		return opts, fmt.Errorf("%w: expected exactly one recording path, got %d", errUsage, len(positional))
	}
	if opts.to == "" {
		flags.Usage()
		return opts, fmt.Errorf("%w: --to is required", errUsage)
	}
	opts.recording = positional[0]
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	envErr := godotenv.Load()

	cfg := config.Load()
	if opts.provider != "" {
		cfg.STT.Provider = opts.provider
	}
	if opts.candidates != "" {
		cfg.Translation.CandidateLanguages = config.ParseList(opts.candidates)
	}
	if opts.timeout > 0 {
		cfg.Translation.Timeout = opts.timeout
	}
	if opts.logLevel != "" {
		cfg.Observability.LogLevel = opts.logLevel
	}
	if opts.metricsAddr != "" {
		cfg.Observability.MetricsAddr = opts.metricsAddr
	}

	logger := logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
		Output:     stderr,
	})
	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn().Err(envErr).Msg("Failed to load .env file")
	}

	publisher := events.New(&events.Config{
		Enabled:       cfg.Kafka.Enabled,
		Brokers:       cfg.Kafka.Brokers,
		TopicSegments: cfg.Kafka.TopicSegments,
		TopicSessions: cfg.Kafka.TopicSessions,
		Principal:     cfg.Kafka.Principal,
	})

	application := app.New(cfg, app.WithPublisher(publisher), app.WithProgress(stdout))
	defer func() {
		if err := application.Shutdown(); err != nil {
			logger.Warn().Err(err).Msg("Shutdown failed")
		}
	}()

	if cfg.Observability.MetricsAddr != "" {
		srv := observability.NewServer(cfg.Observability.MetricsAddr, apphttp.NewRouter(application))
		if err := srv.Start(); err != nil {
			fmt.Fprintf(stderr, "Error: metrics server: %v\n", err)
			return exitFailure
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = application.Translate(ctx, app.Request{
		AudioPath:      opts.recording,
		TargetLanguage: opts.to,
		SourceLanguage: opts.from,
		OutPath:        opts.out,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitFailure
	}
	return exitOK
}
