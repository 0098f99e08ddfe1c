package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/roach88/entitybridge/internal/bridge"
	"github.com/roach88/entitybridge/internal/channel"
	"github.com/roach88/entitybridge/internal/entitystate"
	"github.com/roach88/entitybridge/internal/extension"
	"github.com/roach88/entitybridge/internal/store"
)

// callsMetric is the counter HostResult.Calls is read from.
const callsMetric = "entitybridge_extension_calls_total"

// HostOptions holds flags for the host command.
type HostOptions struct {
	*RootOptions
	Config      string
	Database    string
	Schema      string
	MetricsAddr string
}

// HostResult summarizes a finished host session.
type HostResult struct {
	EntityID string            `json:"entity_id"`
	State    entitystate.State `json:"state"`
	Version  int64             `json:"version"`
	Calls    int               `json:"calls"`
}

// NewHostCommand creates the host command.
func NewHostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "host -- <command> [args...]",
		Short: "Run an extension process against a stored entity",
		Long: `Start a sandboxed extension as a subprocess and serve it over its
stdin/stdout, one JSON message per line. Field edits are persisted to the
SQLite backend and lifecycle calls go through the local backend.

The entry named in the config is imported on first use. The session ends
when the extension closes its stdout.

Examples:
  entitybridge host --config ./extension.yaml --db ./space.db -- ./my-extension
  entitybridge host --config ./extension.yaml --db ./space.db --schema ./schema \
      --metrics-addr :9090 -- entitybridge peer --call publishEntry`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "extension config YAML (required)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema supplying the content type and validating publishes")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHost(opts *HostOptions, argv []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, schema, err := loadHostConfig(opts.Config, opts.Schema)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}

	st, err := openStore(opts.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	entry, err := ensureEntry(cmd, st, cfg.Entry)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err)
	}
	cfg.Entry = entry

	reg := prometheus.NewRegistry()
	prom, err := extension.NewPrometheusTracker(reg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	cfg.Tracker = extension.MultiTracker{extension.SlogTracker{}, prom}

	if opts.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              opts.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", opts.MetricsAddr, "error", err)
			}
		}()
		defer srv.Close()
		slog.Info("serving metrics", "addr", opts.MetricsAddr)
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	child := exec.CommandContext(ctx, argv[0], argv[1:]...)
	child.Stderr = cmd.ErrOrStderr()
	stdin, err := child.StdinPipe()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, err)
	}
	stdout, err := child.StdoutPipe()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, err)
	}

	transport := channel.NewStreamTransport(stdout, stdin)
	ch := channel.New(transport, channel.UUIDv7Generator{})
	defer ch.Destroy()
	cfg.Channel = ch

	sessionOpts := bridge.Options{}
	if schema != nil {
		sessionOpts.Validator = store.Validator(schema.Validate)
	}
	session, err := bridge.New(*cfg, st, sessionOpts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err)
	}
	defer session.Close()

	if err := child.Start(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, fmt.Errorf("start extension: %w", err))
	}
	slog.Info("extension started", "pid", child.Process.Pid, "entity", entry.Sys.ID, "location", cfg.Location)

	if err := session.Connect(); err != nil {
		_ = child.Process.Kill()
		_ = child.Wait()
		return formatter.Fail(ExitCommandError, ErrCodeConfig, fmt.Errorf("connect: %w", err))
	}

	runErr := transport.Run(ctx)
	ch.Wait()
	_ = stdin.Close()
	waitErr := child.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return formatter.Fail(ExitCommandError, ErrCodeInput, runErr)
	}
	if waitErr != nil && ctx.Err() == nil {
		return formatter.Fail(ExitFailure, ErrCodeRejected, fmt.Errorf("extension exited: %w", waitErr))
	}

	sys := session.Document.Sys()
	result := HostResult{
		EntityID: sys.ID,
		State:    session.Resource.State(),
		Version:  sys.Version,
		Calls:    countCalls(reg),
	}
	text := fmt.Sprintf("%s is %s at version %d after %d extension calls", result.EntityID, result.State, result.Version, result.Calls)
	return formatter.Success(result, text)
}

// countCalls sums the successful-call counter across its labels.
func countCalls(reg prometheus.Gatherer) int {
	families, err := reg.Gather()
	if err != nil {
		slog.Warn("gather metrics", "error", err)
		return 0
	}
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != callsMetric {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return int(total)
}
