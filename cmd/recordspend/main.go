// Package main provides a CLI tool to record real spend-source output as
// parser test fixtures.
// Usage:
//
//	go run ./cmd/recordspend \
//	  -interval=daily \
//	  -days=7 \
//	  -output=internal/spend/testdata/ccusage_daily.json
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

func main() {
	command := flag.String("command", "ccusage", "Spend CLI to invoke")
	interval := flag.String("interval", "daily", "Interval subcommand: daily, weekly or monthly")
	days := flag.Int("days", 7, "Days to cover, counting back from today")
	output := flag.String("output", "", "Destination file (required)")
	flag.Parse()

	if *output == "" {
		fmt.Fprintln(os.Stderr, "error: -output is required")
		flag.Usage()
		os.Exit(2)
	}
	switch *interval {
	case "daily", "weekly", "monthly":
	default:
		fmt.Fprintf(os.Stderr, "error: unknown interval %q\n", *interval)
		os.Exit(2)
	}

	now := time.Now().UTC()
	since := now.AddDate(0, 0, -(*days - 1)).Format("20060102")
	until := now.Format("20060102")

	// The argv matches what the spend provider runs in production
	argv := []string{*interval, "--json", "--since", since, "--until", until}
	fmt.Fprintf(os.Stderr, "running: %s %s\n", *command, strings.Join(argv, " "))

	cmd := exec.Command(*command, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n%s\n", err, stderr.String())
		os.Exit(1)
	}

	// Pretty-print so fixtures diff cleanly
	var doc interface{}
	if err := json.Unmarshal(stdout.Bytes(), &doc); err != nil {
		fmt.Fprintf(os.Stderr, "error: output is not valid JSON: %v\n", err)
		os.Exit(1)
	}
	pretty, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	pretty = append(pretty, '\n')

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, pretty, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("recorded %d bytes to %s\n", len(pretty), *output)
}
