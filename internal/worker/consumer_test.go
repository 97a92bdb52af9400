package worker_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/saferoute/saferoute/internal/community"
	"github.com/saferoute/saferoute/internal/worker"
)

func newProcessor() (*worker.Processor, *community.Service) {
	svc := community.NewService(community.ServiceConfig{
		Repository: community.NewInMemoryRepository(),
		Now:        func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return worker.NewProcessor(svc, time.Second, zerolog.Nop()), svc
}

type failingSubmitter struct{}

func (failingSubmitter) SubmitFeedback(context.Context, community.FeedbackRequest) (*community.SubmitResult, error) {
	return nil, fmt.Errorf("submit feedback: %w", community.ErrStoreUnavailable)
}

func TestDefaultConsumerConfig(t *testing.T) {
	cfg := worker.DefaultConsumerConfig()

	assert.Equal(t, "feedback-submissions", cfg.Subscription)
	assert.Equal(t, 10, cfg.MaxOutstanding)
	assert.Equal(t, 10*time.Minute, cfg.MaxExtension)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestParseFeedbackMessage(t *testing.T) {
	req, err := worker.ParseFeedbackMessage([]byte(
		`{"userId":"u1","lat":52.37,"lng":4.9,"isSafe":false,"experienceText":"dark","ratings":{"lighting":2}}`))
	require.NoError(t, err)

	assert.Equal(t, "u1", req.UserID)
	assert.InDelta(t, 52.37, req.Lat, 1e-9)
	assert.False(t, req.IsSafe)
	require.NotNil(t, req.ExperienceText)
	assert.Equal(t, "dark", *req.ExperienceText)
	require.NotNil(t, req.Ratings)
	assert.Equal(t, 2, *req.Ratings.Lighting)

	for _, payload := range []string{
		`not json`,
		`{"userId":"u1","lat":1,"lng":2}`,
		`{"userId":"u1","lng":2,"isSafe":true}`,
	} {
		_, err := worker.ParseFeedbackMessage([]byte(payload))
		assert.ErrorIs(t, err, worker.ErrMalformedMessage, payload)
	}
}

func TestProcessor_Outcomes(t *testing.T) {
	p, svc := newProcessor()
	ctx := context.Background()
	msg := []byte(`{"userId":"u1","lat":52.37,"lng":4.9,"isSafe":true}`)

	assert.Equal(t, worker.OutcomeApplied, p.Process(ctx, msg))
	assert.Equal(t, worker.OutcomeCooldown, p.Process(ctx, msg))
	assert.Equal(t, worker.OutcomeDropped, p.Process(ctx, []byte(`{`)))
	assert.Equal(t, worker.OutcomeDropped,
		p.Process(ctx, []byte(`{"userId":"u1","lat":95,"lng":4.9,"isSafe":true}`)))
	assert.Equal(t, worker.OutcomeDropped,
		p.Process(ctx, []byte(`{"userId":"","lat":1,"lng":1,"isSafe":true}`)))

	stats, err := svc.GetAreaStats(ctx, "52.37_4.90")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SafeCount)

	snap := p.Stats()
	assert.EqualValues(t, 1, snap.Applied)
	assert.EqualValues(t, 1, snap.Cooldown)
	assert.EqualValues(t, 3, snap.Dropped)
	assert.EqualValues(t, 0, snap.Retried)
	assert.False(t, snap.LastMessageAt.IsZero())
}

func TestProcessor_RetriesOnStoreFailure(t *testing.T) {
	p := worker.NewProcessor(failingSubmitter{}, 0, zerolog.Nop())

	outcome := p.Process(context.Background(), []byte(`{"userId":"u1","lat":1,"lng":1,"isSafe":true}`))

	assert.Equal(t, worker.OutcomeRetry, outcome)
	assert.False(t, outcome.Ack())
	assert.EqualValues(t, 1, p.Stats().Retried)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		outcome worker.Outcome
		name    string
		ack     bool
	}{
		{worker.OutcomeApplied, "applied", true},
		{worker.OutcomeCooldown, "cooldown", true},
		{worker.OutcomeDropped, "dropped", true},
		{worker.OutcomeRetry, "retry", false},
		{worker.Outcome(42), "unknown", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.outcome.String())
			assert.Equal(t, tt.ack, tt.outcome.Ack())
		})
	}
}

func TestProcessor_ConcurrentStats(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, svc := newProcessor()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p.Process(ctx, []byte(fmt.Sprintf(`{"userId":"user-%d","lat":48.85,"lng":2.35,"isSafe":%t}`, i, i%2 == 0)))
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 20, p.Stats().Applied)

	stats, err := svc.GetAreaStats(ctx, "48.85_2.35")
	require.NoError(t, err)
	assert.Equal(t, 10, stats.SafeCount)
	assert.Equal(t, 10, stats.UnsafeCount)
}

func TestProcessor_Replay(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, _ := newProcessor()
	input := strings.Join([]string{
		`{"userId":"a","lat":52.37,"lng":4.9,"isSafe":true}`,
		``,
		`{"userId":"b","lat":52.37,"lng":4.9,"isSafe":false}`,
		`garbage`,
		`{"userId":"a","lat":52.37,"lng":4.9,"isSafe":false}`,
	}, "\n")

	result, err := p.Replay(context.Background(), strings.NewReader(input), 1)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Lines)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 1, result.Cooldown)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 0, result.Failed)
}

func TestProcessor_ReplayCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := worker.NewProcessor(failingSubmitter{}, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := strings.Repeat(`{"userId":"a","lat":1,"lng":1,"isSafe":true}`+"\n", 100)
	result, err := p.Replay(ctx, strings.NewReader(input), 2)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, result.Lines, 100)
}
