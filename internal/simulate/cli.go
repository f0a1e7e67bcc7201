package simulate

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/facepulse/pkg/logger"
)

// SetupLogging initializes the logger. With a log file, output goes to both
// stdout and the file; the returned func closes the file.
func SetupLogging(logFile, level string) (func(), error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
		if err != nil {
			return closeFn, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closeFn = func() { _ = file.Close() }
	}
	if err := logger.Init(logger.WithWriter(w)); err != nil {
		closeFn()
		return func() {}, fmt.Errorf("initialize logger: %w", err)
	}
	if err := logger.SetLevelString(level); err != nil {
		closeFn()
		return func() {}, err
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`facepulse simulator
===================

Drives a running facepulse service end to end: webcam sessions with
synthesized detections, concurrent score submissions with duplicates,
then checks the ranking.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -sessions int      Webcam sessions to drive (default 8)
  -frames int        Detections per session (default 30)
  -players int       Players submitting scores (default 50)
  -scores int        Submissions per player (default 20)
  -dup int           Resend every Nth submission, 0 disables (default 10)
  -top int           Leaderboard entries to verify (default 20)
  -workers int       Concurrent requests (default CPU cores * 2)
  -timeout duration  HTTP request timeout (default 10s)
  -settle duration   How long to wait for rankings (default 30s)
  -seed uint         Seed for generated data, 0 uses the clock
  -output string     Write generated submissions to this JSON file
  -log string        Also write logs to this file
  -verbose           Log every session
  -help              Show this help message

Examples:
  go run ./cmd/simulate -players 500 -scores 40 -workers 32
  go run ./cmd/simulate -sessions 0 -url http://localhost:8080
`)
}
