package simulate

import "time"

// Config holds the settings of one simulation run.
type Config struct {
	BaseURL          string        // Base URL of the service
	Sessions         int           // Number of webcam sessions to drive
	FramesPerSession int           // Detections posted per session
	Players          int           // Number of players submitting scores
	ScoresPerPlayer  int           // Score submissions per player
	DuplicateEvery   int           // Resend every Nth submission; 0 disables
	TopN             int           // Number of top entries to fetch
	Workers          int           // Concurrent requests
	Timeout          time.Duration // HTTP request timeout
	SettleTimeout    time.Duration // How long to wait for ranking to catch up
	Seed             uint64        // Seed for generated data; 0 uses the clock
	OutputFile       string        // Where to write the generated submissions; empty skips
	Verbose          bool          // Log every request
}

// Submission is one generated score submission.
type Submission struct {
	SubmissionID string  `json:"submission_id"`
	PlayerID     string  `json:"player_id"`
	PlayerName   string  `json:"player_name"`
	Game         string  `json:"game"`
	Score        float64 `json:"score"`
}

// Entry is one ranking row as the API returns it.
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"player_id"`
	Score    float64 `json:"score"`
}

// AckResponse is the answer to a score submission.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// Stats holds run statistics.
type Stats struct {
	SessionsStarted   int
	SessionsEnded     int
	FramesPosted      int
	FramesDropped     int
	Captures          int
	LocalCaptures     int
	ScoresSubmitted   int
	ScoresAccepted    int
	ScoresDuplicate   int
	ScoresFailed      int
	BackpressureRetry int
	PlayersRanked     int
	TopEntries        int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
