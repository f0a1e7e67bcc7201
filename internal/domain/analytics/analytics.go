// Package analytics summarises captured moments per session and globally.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/okian/facepulse/internal/domain/model"
)

// SmileStats describes the smile distribution of a set of moments.
type SmileStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    float64 `json:"max"`
	P90    float64 `json:"p90"`
	StdDev float64 `json:"std_dev"`
}

// EmotionShare is one slice of the emotion distribution.
type EmotionShare struct {
	Emotion model.Emotion `json:"emotion"`
	Count   int           `json:"count"`
	Share   float64       `json:"share"`
}

// SessionSummary is the analytics view of one session.
type SessionSummary struct {
	SessionID       string         `json:"session_id"`
	Moments         int            `json:"moments"`
	Emotions        []EmotionShare `json:"emotions"`
	Dominant        model.Emotion  `json:"dominant,omitempty"`
	Smile           SmileStats     `json:"smile"`
	BlinkCount      int            `json:"blink_count"`
	DurationSeconds int            `json:"duration_seconds"`
	BlinksPerMinute float64        `json:"blinks_per_minute"`
}

// Dashboard aggregates every session.
type Dashboard struct {
	Sessions        int            `json:"sessions"`
	ActiveSessions  int            `json:"active_sessions"`
	Moments         int            `json:"moments"`
	Emotions        []EmotionShare `json:"emotions"`
	Smile           SmileStats     `json:"smile"`
	AvgDurationSecs float64        `json:"avg_duration_seconds"`
	TotalBlinks     int            `json:"total_blinks"`
}

// Summarize builds the summary of one session. now is used as the end of a
// session that has not ended yet.
func Summarize(s model.Session, moments []model.CapturedMoment, now time.Time) SessionSummary {
	sum := SessionSummary{
		SessionID:  s.ID,
		Moments:    len(moments),
		Emotions:   distribution(moments),
		Smile:      smileStats(moments),
		BlinkCount: s.BlinkCount,
	}
	if len(sum.Emotions) > 0 && sum.Emotions[0].Count > 0 {
		sum.Dominant = sum.Emotions[0].Emotion
	}

	sum.DurationSeconds = s.DurationSeconds
	if s.EndedAt == nil && !s.StartedAt.IsZero() {
		sum.DurationSeconds = int(now.Sub(s.StartedAt).Seconds())
	}
	if sum.DurationSeconds > 0 {
		sum.BlinksPerMinute = round2(float64(s.BlinkCount) / (float64(sum.DurationSeconds) / 60))
	}
	return sum
}

// Aggregate builds the global dashboard.
func Aggregate(sessions []model.Session, moments []model.CapturedMoment) Dashboard {
	d := Dashboard{
		Sessions: len(sessions),
		Moments:  len(moments),
		Emotions: distribution(moments),
		Smile:    smileStats(moments),
	}
	var durations []float64
	for _, s := range sessions {
		d.TotalBlinks += s.BlinkCount
		if s.Active() {
			d.ActiveSessions++
			continue
		}
		durations = append(durations, float64(s.DurationSeconds))
	}
	if mean, err := stats.Mean(durations); err == nil {
		d.AvgDurationSecs = round2(mean)
	}
	return d
}

func smileStats(moments []model.CapturedMoment) SmileStats {
	data := make(stats.Float64Data, 0, len(moments))
	for _, m := range moments {
		data = append(data, float64(m.Metrics.SmilePercentage))
	}
	if len(data) == 0 {
		return SmileStats{}
	}
	var out SmileStats
	if v, err := data.Mean(); err == nil {
		out.Mean = round2(v)
	}
	if v, err := data.Median(); err == nil {
		out.Median = round2(v)
	}
	if v, err := data.Max(); err == nil {
		out.Max = v
	}
	if v, err := data.PercentileNearestRank(90); err == nil {
		out.P90 = v
	}
	if v, err := data.StandardDeviationPopulation(); err == nil {
		out.StdDev = round2(v)
	}
	return out
}

// distribution counts every emotion, including zero counts, ordered by
// count descending and then by the canonical emotion order.
func distribution(moments []model.CapturedMoment) []EmotionShare {
	counts := make(map[model.Emotion]int)
	for _, m := range moments {
		counts[m.Metrics.Emotion]++
	}
	all := model.Emotions()
	out := make([]EmotionShare, len(all))
	for i, e := range all {
		out[i] = EmotionShare{Emotion: e, Count: counts[e]}
		if len(moments) > 0 {
			out[i].Share = round2(float64(counts[e]) / float64(len(moments)))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
