package spend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"costlens/internal/core"
)

// Prometheus metric for failed spend CLI invocations
var spendFetchFailures = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "costlens_spend_fetch_failures_total",
		Help: "Total number of failed spend CLI invocations",
	},
	[]string{"granularity"},
)

const (
	// DefaultCommand is the spend CLI consulted when none is configured.
	DefaultCommand = "ccusage"

	// DefaultTimeout bounds a single CLI invocation.
	DefaultTimeout = 30 * time.Second
)

// Config holds CLI provider configuration.
type Config struct {
	// Command is the spend CLI binary (default: ccusage).
	Command string

	// ExtraArgs are appended to every invocation.
	ExtraArgs []string

	// Timeout bounds a single invocation (default: 30s).
	Timeout time.Duration

	// Disabled short-circuits every fetch to SourceUnavailable
	// without spawning a process.
	Disabled bool
}

// CLIProvider runs a ccusage-compatible CLI and parses its JSON output.
// The zero cost of a missing binary or a bad exit is a degraded report,
// so every failure maps to SourceUnavailable rather than a fatal error.
type CLIProvider struct {
	cfg Config
}

var _ Provider = (*CLIProvider)(nil)

// NewCLIProvider creates a CLI-backed spend provider, applying defaults
// for any unset configuration.
func NewCLIProvider(cfg Config) *CLIProvider {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &CLIProvider{cfg: cfg}
}

// FetchSpend runs the CLI for the requested granularity and parses the
// result. Spawn, exit, and parse failures all map to SourceUnavailable.
func (p *CLIProvider) FetchSpend(ctx context.Context, params QueryParams) ([]core.SpendPeriod, error) {
	raw, err := p.fetchRaw(ctx, params)
	if err != nil {
		return nil, err
	}
	return parseAndLog(raw, params.Granularity, p.cfg.Command)
}

// commandLine builds the full argv for one fetch. It is also the input to
// the snapshot cache key, so it must be deterministic for given params.
func (p *CLIProvider) commandLine(params QueryParams) []string {
	argv := []string{p.cfg.Command, string(params.Granularity), "--json"}
	if params.StartDate != "" {
		argv = append(argv, "--since", compactDate(params.StartDate))
	}
	if params.EndDate != "" {
		argv = append(argv, "--until", compactDate(params.EndDate))
	}
	argv = append(argv, p.cfg.ExtraArgs...)
	return argv
}

// compactDate converts 2025-12-01 into 20251201, the upstream CLI's date form.
func compactDate(s string) string {
	return strings.ReplaceAll(s, "-", "")
}

func (p *CLIProvider) fetchRaw(ctx context.Context, params QueryParams) ([]byte, error) {
	if p.cfg.Disabled {
		return nil, core.NewSourceUnavailableError(p.cfg.Command, errors.New("spend source disabled"))
	}
	if !params.Granularity.Valid() {
		return nil, core.NewValidationError(fmt.Sprintf("invalid granularity: %q", params.Granularity), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	argv := p.commandLine(params)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		spendFetchFailures.WithLabelValues(string(params.Granularity)).Inc()
		slog.Warn("spend CLI failed",
			"command", p.cfg.Command,
			"granularity", params.Granularity,
			"stderr", strings.TrimSpace(stderr.String()),
			"error", err)
		return nil, core.NewSourceUnavailableError(p.cfg.Command, err)
	}

	return stdout.Bytes(), nil
}

// parseAndLog wraps Parse with failure accounting shared by the direct and
// snapshot-backed providers.
func parseAndLog(raw []byte, g core.Granularity, source string) ([]core.SpendPeriod, error) {
	periods, skipped, err := Parse(raw, g)
	if err != nil {
		spendFetchFailures.WithLabelValues(string(g)).Inc()
		return nil, core.NewSourceUnavailableError(source, err)
	}
	if skipped > 0 {
		slog.Warn("skipped malformed spend rows", "granularity", g, "rows", skipped)
	}
	return periods, nil
}
