package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// maxLineSize bounds a single JSON line in a replay file.
const maxLineSize = 64 * 1024

// ReplayResult summarises a replay run.
type ReplayResult struct {
	Lines    int
	Applied  int
	Cooldown int
	Dropped  int
	Failed   int
	Duration time.Duration
}

// Replay applies newline-delimited feedback messages from r using
// concurrency workers. Blank lines are skipped. Messages that would be
// retried on the queue are counted as failed. Reading stops early when ctx
// is cancelled.
func (p *Processor) Replay(ctx context.Context, r io.Reader, concurrency int) (ReplayResult, error) {
	start := time.Now()
	if concurrency <= 0 {
		concurrency = DefaultConsumerConfig().Concurrency
	}

	lines := make(chan []byte, concurrency)
	outcomes := make(chan Outcome, concurrency)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for line := range lines {
				outcomes <- p.Process(ctx, line)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		readErr <- feedLines(ctx, r, lines)
	}()

	var result ReplayResult
	for o := range outcomes {
		result.Lines++
		switch o {
		case OutcomeApplied:
			result.Applied++
		case OutcomeCooldown:
			result.Cooldown++
		case OutcomeDropped:
			result.Dropped++
		case OutcomeRetry:
			result.Failed++
		}
	}
	result.Duration = time.Since(start)

	if err := <-readErr; err != nil {
		return result, err
	}

	p.logger.Info().
		Int("lines", result.Lines).
		Int("applied", result.Applied).
		Int("cooldown", result.Cooldown).
		Int("dropped", result.Dropped).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("feedback replay completed")

	return result, nil
}

func feedLines(ctx context.Context, r io.Reader, out chan<- []byte) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case out <- append([]byte(nil), line...):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading replay input: %w", err)
	}
	return nil
}
