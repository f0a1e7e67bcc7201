package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/facepulse/internal/simulate"
	"github.com/okian/facepulse/pkg/logger"
)

const (
	workersPerCPU = 2
	runTimeout    = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		sessions = flag.Int("sessions", simulate.DefaultSessions, "Webcam sessions to drive")
		frames   = flag.Int("frames", simulate.DefaultFramesPerSession, "Detections per session")
		players  = flag.Int("players", simulate.DefaultPlayers, "Players submitting scores")
		scores   = flag.Int("scores", simulate.DefaultScoresPerPlayer, "Submissions per player")
		dup      = flag.Int("dup", simulate.DefaultDuplicateEvery, "Resend every Nth submission, 0 disables")
		topN     = flag.Int("top", simulate.DefaultTopN, "Leaderboard entries to verify")
		workers  = flag.Int("workers", runtime.NumCPU()*workersPerCPU, "Concurrent requests")
		timeout  = flag.Duration("timeout", simulate.DefaultTimeout, "HTTP request timeout")
		settle   = flag.Duration("settle", simulate.DefaultSettleTimeout, "How long to wait for rankings")
		seed     = flag.Uint64("seed", 0, "Seed for generated data, 0 uses the clock")
		output   = flag.String("output", "", "Write generated submissions to this JSON file")
		logFile  = flag.String("log", "", "Also write logs to this file")
		level    = flag.String("level", "info", "Log level")
		verbose  = flag.Bool("verbose", false, "Log every session")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile, *level)
	if err != nil {
		os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	cfg := simulate.Config{
		BaseURL:          *baseURL,
		Sessions:         *sessions,
		FramesPerSession: *frames,
		Players:          *players,
		ScoresPerPlayer:  *scores,
		DuplicateEvery:   *dup,
		TopN:             *topN,
		Workers:          *workers,
		Timeout:          *timeout,
		SettleTimeout:    *settle,
		Seed:             *seed,
		OutputFile:       *output,
		Verbose:          *verbose,
	}

	if _, err := simulate.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		closeLog()
		os.Exit(1)
	}
}
