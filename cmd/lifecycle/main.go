// Command lifecycle operates the quota and training lifecycle from the shell:
// migrations, quota lookups, training submissions, provider event replay and
// generations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/portraitlab/server/internal/app"
	"github.com/portraitlab/server/internal/infra/config"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
)

const usage = `usage: lifecycle [-config dir] [-metrics-addr addr] <command> [flags]

commands:
  migrate                                   create or update tables
  user        -email e [-name n]            create a user
  plan        -id id -name n -generations n upsert a plan (-1 generations is unlimited)
  quota       -user id                      show quota status
  train       -user id -images id,id [-name n]
  generate    -user id -prompt p [-training id]
  generations -user id [-limit n]
  trainings   -user id
  event       -file payload.json            apply a Replicate training webhook
  sync        -job id                       poll a training and apply its state
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("lifecycle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configDir := fs.String("config", "", "extra directory to search for config.yaml")
	metricsAddr := fs.String("metrics-addr", "", "serve /metrics on this address while the command runs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	// Load configuration
	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Address = *metricsAddr
	}

	a, cleanup, err := app.InitializeApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer cleanup()

	if cfg.Metrics.Address != "" {
		shutdown := serveMetrics(a, cfg.Metrics.Address)
		defer shutdown()
	}

	return newCLI(a, stdout, stderr).dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

// serveMetrics exposes the registry until the returned func is called.
func serveMetrics(a *app.App, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.Logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// describe renders an error with its code when it carries one.
func describe(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if len(appErr.Details) > 0 {
			return fmt.Sprintf("%s: %s %v", appErr.Code, appErr.Error(), appErr.Details)
		}
		return fmt.Sprintf("%s: %s", appErr.Code, appErr.Error())
	}
	return err.Error()
}
