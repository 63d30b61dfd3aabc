// Package cli implements the command surface shared by the module's two
// entrypoints (root main.go and cmd/manager/main.go): flag parsing, logger
// setup, and wiring a Manager with the bundled demo clock adapter.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/foxbox/adapters/pkg/entity"
	"github.com/foxbox/adapters/pkg/ids"
	"github.com/foxbox/adapters/pkg/logging"
	"github.com/foxbox/adapters/pkg/manager"
	"github.com/foxbox/adapters/pkg/metrics"
	"github.com/foxbox/adapters/pkg/tagstore"
	"github.com/foxbox/adapters/pkg/values"
)

var timeStampFormat = values.JSONFormat{FormatName: "timestamp", Want: values.TypeTimeStamp}

var (
	logLevel    string
	tagsPath    string
	metricsAddr string
)

// Execute builds and runs the manager command, returning a process exit
// code. Both cmd/manager/main.go and the root main.go call this directly.
func Execute() int {
	root := &cobra.Command{
		Use:   "manager",
		Short: "Runs the adapter manager with a demo clock adapter",
		RunE:  run,
	}
	var flags *pflag.FlagSet = root.Flags()
	flags.StringVar(&logLevel, "log-level", "INFO", "Minimum log level: DEBUG, INFO, WARNING or ERROR")
	flags.StringVar(&tagsPath, "tags-path", "", "YAML file used to persist tags; empty disables persistence")
	flags.StringVar(&metricsAddr, "metrics-addr", ":9090", "Address the Prometheus /metrics endpoint listens on")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func run(_ *cobra.Command, _ []string) error {
	logging.SetBase(zapr.NewLogger(newZapLogger(logLevel)))
	log := logging.Named("entrypoint")

	provider, metricsHandler, err := metrics.NewProvider()
	if err != nil {
		return fmt.Errorf("setting up metrics provider: %w", err)
	}
	watchMetrics, err := metrics.NewWatchMetrics(provider)
	if err != nil {
		return fmt.Errorf("registering watch metrics: %w", err)
	}

	var tags tagstore.Store = tagstore.NoOp{}
	if tagsPath != "" {
		tags = tagstore.NewFile(tagsPath, logging.Named("tagstore"))
	}

	m := manager.New(manager.Options{Tags: tags, Metrics: watchMetrics})

	clock := newClockAdapter(ids.ChannelID(ids.NewSurrogateID()))
	if err := m.AddAdapter(clock.ID(), clock.Name(), clock.Vendor(), clock.Version(), clock); err != nil {
		return fmt.Errorf("registering clock adapter: %w", err)
	}
	svc := &entity.Service{
		ID:         ids.ServiceID(ids.NewSurrogateID()),
		Adapter:    clock.ID(),
		Tags:       map[ids.TagID]struct{}{},
		Properties: map[string]string{},
		Channels:   map[ids.ChannelID]struct{}{},
	}
	if err := m.AddService(svc); err != nil {
		return fmt.Errorf("registering clock service: %w", err)
	}
	ch := &entity.Channel{
		ID:      clock.channel,
		Service: svc.ID,
		Adapter: clock.ID(),
		Signatures: entity.MethodSignatures{
			Fetch: &entity.Signature{Returns: entity.RequiredExpectation(timeStampFormat)},
			Watch: &entity.Signature{Returns: entity.RequiredExpectation(timeStampFormat)},
		},
	}
	if err := m.AddChannel(ch); err != nil {
		return fmt.Errorf("registering clock channel: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		log.Info("metrics endpoint listening", "addr", metricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "metrics server exited")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "metrics server shutdown")
	}
	return m.Stop(shutdownCtx)
}

func newZapLogger(level string) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var lvl zapcore.Level
	switch level {
	case "DEBUG":
		lvl = zapcore.DebugLevel
	case "WARNING":
		lvl = zapcore.WarnLevel
	case "ERROR":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(os.Stderr), lvl)
	return zap.New(core, zap.AddCaller())
}
