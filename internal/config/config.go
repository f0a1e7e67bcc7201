// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Defaults live in New(); Load layers a YAML file and env vars on top.
// - Keys are flat snake_case and match the koanf struct tags.
// - Durations are configured in whole milliseconds or seconds (suffix _ms/_s).
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// PublicBaseURL prefixes media and share URLs handed to clients.
	PublicBaseURL string `koanf:"public_base_url"`

	// DatabasePath is the SQLite file backing the datastore.
	DatabasePath string `koanf:"database_path"`
	// AutoMigrate creates missing tables on start. When false a missing
	// table surfaces as setup_required.
	AutoMigrate bool `koanf:"auto_migrate"`

	// BucketDir is where captured frames and shared images are stored.
	BucketDir string `koanf:"bucket_dir"`
	// MaxUploadBytes caps a single frame or share upload.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// QueueSize bounds the in-memory job queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of job workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the score submission idempotency set.
	DedupeSize int `koanf:"dedupe_size"`

	// RankingBackend is "memory" or "redis".
	RankingBackend string `koanf:"ranking_backend"`
	RedisAddr      string `koanf:"redis_addr"`
	RedisPassword  string `koanf:"redis_password"`
	RedisDB        int    `koanf:"redis_db"`
	RedisKey       string `koanf:"redis_key"`

	// MaxLeaderboardLimit caps ?limit on /leaderboard and /scores.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// Analysis and capture gate.
	PollIntervalMS            int     `koanf:"poll_interval_ms"`
	StabilityWindow           int     `koanf:"stability_window"`
	CaptureCooldownMS         int     `koanf:"capture_cooldown_ms"`
	AbsenceTimeoutMS          int     `koanf:"absence_timeout_ms"`
	EARThreshold              float64 `koanf:"ear_threshold"`
	HeadPoseThreshold         float64 `koanf:"head_pose_threshold"`
	SmileHappyWeight          float64 `koanf:"smile_happy_weight"`
	LeaderboardSmileThreshold int     `koanf:"leaderboard_smile_threshold"`

	// Emoji reaction / time capsule flows.
	ReactionHoldMS           int     `koanf:"reaction_hold_ms"`
	ReactionCaptureTimeoutMS int     `koanf:"reaction_capture_timeout_ms"`
	ReactionMinConfidence    float64 `koanf:"reaction_min_confidence"`
	ReactionRounds           int     `koanf:"reaction_rounds"`

	// Collage renderer bounds.
	CollageMaxWidth   int `koanf:"collage_max_width"`
	CollageMaxColumns int `koanf:"collage_max_columns"`

	// Quote proxy. An empty API key uses the built-in quote table.
	OpenAIAPIKey   string `koanf:"openai_api_key"`
	OpenAIBaseURL  string `koanf:"openai_base_url"`
	OpenAIModel    string `koanf:"openai_model"`
	QuoteCacheTTLS int    `koanf:"quote_cache_ttl_s"`
	QuoteTimeoutMS int    `koanf:"quote_timeout_ms"`

	// Timed challenge mini-game.
	ChallengeDurationS int                `koanf:"challenge_duration_s"`
	ChallengeWeights   map[string]float64 `koanf:"challenge_weights"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                  "info",
		LogFormat:                 "text",
		Addr:                      ":9080",
		PublicBaseURL:             "http://localhost:9080",
		DatabasePath:              "./data/facepulse.db",
		AutoMigrate:               true,
		BucketDir:                 "./data/bucket",
		MaxUploadBytes:            5 * 1024 * 1024,
		QueueSize:                 10_000,
		WorkerCount:               runtime.NumCPU() * 2,
		DedupeSize:                100_000,
		RankingBackend:            "memory",
		RedisAddr:                 "localhost:6379",
		RedisKey:                  "facepulse:scores",
		MaxLeaderboardLimit:       100,
		PollIntervalMS:            200,
		StabilityWindow:           2,
		CaptureCooldownMS:         1000,
		AbsenceTimeoutMS:          1500,
		EARThreshold:              0.25,
		HeadPoseThreshold:         10,
		SmileHappyWeight:          0.6,
		LeaderboardSmileThreshold: 80,
		ReactionHoldMS:            1000,
		ReactionCaptureTimeoutMS:  5000,
		ReactionMinConfidence:     50,
		ReactionRounds:            5,
		CollageMaxWidth:           2000,
		CollageMaxColumns:         10,
		OpenAIModel:               "gpt-4o-mini",
		QuoteCacheTTLS:            600,
		QuoteTimeoutMS:            8000,
		ChallengeDurationS:        30,
		ChallengeWeights: map[string]float64{
			"smile":    1.0,
			"surprise": 1.5,
			"blink":    0.5,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StabilityWindow < 1:
		return fmt.Errorf("%w: stability_window must be >= 1", ErrInvalidConfig)
	case c.EARThreshold <= 0 || c.EARThreshold >= 1:
		return fmt.Errorf("%w: ear_threshold must be in (0,1)", ErrInvalidConfig)
	case c.SmileHappyWeight < 0 || c.SmileHappyWeight > 1:
		return fmt.Errorf("%w: smile_happy_weight must be in [0,1]", ErrInvalidConfig)
	case c.PollIntervalMS <= 0:
		return fmt.Errorf("%w: poll_interval_ms must be positive", ErrInvalidConfig)
	case c.MaxLeaderboardLimit < 1:
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	switch c.RankingBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownBackend, c.RankingBackend)
	}
	return nil
}

// PollInterval returns the detection poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// CaptureCooldown returns the minimum time between two captures.
func (c *Config) CaptureCooldown() time.Duration {
	return time.Duration(c.CaptureCooldownMS) * time.Millisecond
}

// AbsenceTimeout returns how long a face may be missing before the
// end-of-session signal fires.
func (c *Config) AbsenceTimeout() time.Duration {
	return time.Duration(c.AbsenceTimeoutMS) * time.Millisecond
}

// ReactionHold returns how long a match must hold before capturing.
func (c *Config) ReactionHold() time.Duration {
	return time.Duration(c.ReactionHoldMS) * time.Millisecond
}

// ReactionCaptureTimeout returns how long a capture may stay pending.
func (c *Config) ReactionCaptureTimeout() time.Duration {
	return time.Duration(c.ReactionCaptureTimeoutMS) * time.Millisecond
}

// QuoteCacheTTL returns the quote cache TTL.
func (c *Config) QuoteCacheTTL() time.Duration {
	return time.Duration(c.QuoteCacheTTLS) * time.Second
}

// QuoteTimeout returns the upstream quote request timeout.
func (c *Config) QuoteTimeout() time.Duration {
	return time.Duration(c.QuoteTimeoutMS) * time.Millisecond
}

// ChallengeDuration returns the length of one timed challenge.
func (c *Config) ChallengeDuration() time.Duration {
	return time.Duration(c.ChallengeDurationS) * time.Second
}
