// Package main is the costlens command line client. It builds the cost
// economics report once and renders it to stdout or a file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"costlens/config"
	"costlens/internal/app"
	"costlens/internal/core"
	"costlens/internal/ledger"
	"costlens/internal/logging"
	"costlens/internal/report"
	"costlens/internal/version"
)

const dateLayout = "2006-01-02"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "Path to the configuration file")
		interval    = flag.String("interval", "daily", "Report interval: daily, weekly, monthly or all")
		days        = flag.Int("days", 30, "Number of days to report on (1-365)")
		start       = flag.String("start", "", "Start date (YYYY-MM-DD), overrides -days")
		end         = flag.String("end", "", "End date (YYYY-MM-DD), defaults to today")
		format      = flag.String("format", "table", "Output format: table, json or csv")
		out         = flag.String("out", "", "Write the report to a file instead of stdout")
		noCache     = flag.Bool("no-cache", false, "Bypass the spend snapshot cache")
		logFormat   = flag.String("log-format", "text", "Log format: text or json")
		verbose     = flag.Bool("verbose", false, "Enable debug logging")
		versionFlag = flag.Bool("version", false, "Print version information")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		return 0
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logging.Setup(logging.Options{
		Format: logging.ParseFormat(*logFormat),
		Level:  level,
		Output: os.Stderr,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	params, buildAll, err := resolveParams(*interval, *days, *start, *end)
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		return 1
	}

	renderer, err := report.NewRenderer(report.Format(*format))
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		return 1
	}

	ctx := context.Background()

	reader, store, err := ledger.NewReaderFromConfig(ctx, cfg)
	if err != nil {
		slog.Error("failed to open savings ledger", "error", err)
		return 1
	}
	if store != nil {
		defer store.Close()
	}

	provider, snapCache, err := app.BuildSpendProvider(cfg, *noCache)
	if err != nil {
		slog.Error("failed to initialize spend provider", "error", err)
		return 1
	}
	if snapCache != nil {
		defer snapCache.Close()
	}

	builder := report.NewBuilder(provider, reader)

	var reports []*report.Report
	if buildAll {
		reports, err = builder.BuildAll(ctx, params)
	} else {
		var rep *report.Report
		rep, err = builder.Build(ctx, params)
		if rep != nil {
			reports = []*report.Report{rep}
		}
	}
	if err != nil {
		slog.Error("failed to build report", "error", err)
		return 1
	}

	dst := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			slog.Error("failed to create output file", "error", err)
			return 1
		}
		defer f.Close()
		dst = f
	}

	if err := renderer.RenderAll(dst, reports); err != nil {
		slog.Error("failed to render report", "error", err)
		return 1
	}

	// A missing spend source degrades the report rather than failing the run
	for _, rep := range reports {
		if !rep.SpendAvailable {
			slog.Warn("spend source unavailable, rendered savings-only data", "reason", rep.SpendError)
			break
		}
	}
	return 0
}

// resolveParams turns the flag values into report parameters, mirroring the
// HTTP API: explicit dates win over -days, and a missing range side is
// filled in.
func resolveParams(interval string, days int, start, end string) (report.Params, bool, error) {
	var params report.Params

	buildAll := false
	if interval == "all" {
		buildAll = true
	} else {
		g := core.Granularity(interval)
		if !g.Valid() {
			return params, false, fmt.Errorf("invalid interval %q, expected daily, weekly, monthly or all", interval)
		}
		params.Granularity = g
	}

	if days < 1 || days > 365 {
		return params, false, fmt.Errorf("invalid days %d, expected a number between 1 and 365", days)
	}

	now := time.Now().UTC()
	if start != "" || end != "" {
		if start != "" {
			t, err := time.Parse(dateLayout, start)
			if err != nil {
				return params, false, fmt.Errorf("invalid start date %q, expected YYYY-MM-DD", start)
			}
			params.StartDate = t
		}
		if end != "" {
			t, err := time.Parse(dateLayout, end)
			if err != nil {
				return params, false, fmt.Errorf("invalid end date %q, expected YYYY-MM-DD", end)
			}
			params.EndDate = t
		}
		if params.EndDate.IsZero() {
			params.EndDate = now
		}
		if params.StartDate.IsZero() {
			params.StartDate = params.EndDate.AddDate(0, 0, -(days - 1))
		}
		if params.EndDate.Before(params.StartDate) {
			return params, false, fmt.Errorf("start date is after end date")
		}
		return params, buildAll, nil
	}

	params.EndDate = now
	params.StartDate = now.AddDate(0, 0, -(days - 1))
	return params, buildAll, nil
}
