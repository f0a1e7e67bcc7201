package quote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/facepulse/internal/domain/model"
	"github.com/okian/facepulse/pkg/logger"
)

type countingGen struct {
	calls atomic.Int32
	text  string
	err   error
	delay time.Duration
}

func (g *countingGen) Generate(ctx context.Context, _ model.Emotion, _ int) (string, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.text, g.err
}

func init() {
	_ = logger.Init(logger.WithWriter(io.Discard))
}

func TestQuoteCachesPerBand(t *testing.T) {
	gen := &countingGen{text: "Smile on!"}
	svc := NewService(WithGenerator(gen))
	ctx := context.Background()

	q1, err := svc.Quote(ctx, model.EmotionHappy, 80)
	require.NoError(t, err)
	assert.Equal(t, "Smile on!", q1.Text)
	assert.Equal(t, SourceLLM, q1.Source)
	assert.False(t, q1.Cached)

	q2, err := svc.Quote(ctx, model.EmotionHappy, 95)
	require.NoError(t, err)
	assert.True(t, q2.Cached)
	assert.EqualValues(t, 1, gen.calls.Load())

	_, err = svc.Quote(ctx, model.EmotionHappy, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, gen.calls.Load(), "a new band misses the cache")
}

func TestQuoteFallsBackWithoutCaching(t *testing.T) {
	gen := &countingGen{err: errors.New("upstream down")}
	svc := NewService(WithGenerator(gen))
	ctx := context.Background()

	q, err := svc.Quote(ctx, model.EmotionSad, 40)
	require.NoError(t, err)
	assert.Equal(t, SourceBuiltin, q.Source)
	assert.NotEmpty(t, q.Text)

	_, err = svc.Quote(ctx, model.EmotionSad, 40)
	require.NoError(t, err)
	assert.EqualValues(t, 2, gen.calls.Load())
}

func TestQuoteTimeout(t *testing.T) {
	gen := &countingGen{text: "late", delay: time.Second}
	svc := NewService(WithGenerator(gen), WithTimeout(20*time.Millisecond))

	start := time.Now()
	q, err := svc.Quote(context.Background(), model.EmotionAngry, 50)
	require.NoError(t, err)
	assert.Equal(t, SourceBuiltin, q.Source)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestQuoteCollapsesConcurrentMisses(t *testing.T) {
	gen := &countingGen{text: "together", delay: 50 * time.Millisecond}
	svc := NewService(WithGenerator(gen))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := svc.Quote(context.Background(), model.EmotionSurprised, 60)
			assert.NoError(t, err)
			assert.Equal(t, "together", q.Text)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, gen.calls.Load())
}

func TestStaticGeneratorIsDeterministic(t *testing.T) {
	var g StaticGenerator
	for _, e := range model.Emotions() {
		a, err := g.Generate(context.Background(), e, 77)
		require.NoError(t, err)
		b, _ := g.Generate(context.Background(), e, 99)
		assert.Equal(t, a, b)
	}
	svc := NewService()
	q, err := svc.Quote(context.Background(), model.EmotionNeutral, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceBuiltin, q.Source)
}

func TestOpenAIGenerator(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"message":{"role":"assistant","content":"\"Grin and win.\""},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	defer srv.Close()

	g := NewOpenAIGenerator("test-key", srv.URL+"/v1", "gpt-4o-mini")
	text, err := g.Generate(context.Background(), model.EmotionHappy, 90)
	require.NoError(t, err)
	assert.Equal(t, "Grin and win.", text)
	assert.Equal(t, "gpt-4o-mini", gotModel)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "happy:3", Key(model.EmotionHappy, 100))
	assert.Equal(t, "sad:0", Key(model.EmotionSad, 0))
	assert.Equal(t, Key(model.EmotionSad, 50), Key(model.EmotionSad, 74))
}
