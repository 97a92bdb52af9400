package community

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/saferoute/saferoute/internal/grid"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

// RouteCommunityScore averages the area scores of the unique cells a route
// passes through. Cells nobody has reported on count as NeutralScore and
// are excluded from CoveredGrids. A route without points scores
// NeutralScore with zero cells.
func (s *Service) RouteCommunityScore(ctx context.Context, points []grid.Point) (*RouteScore, error) {
	for i, p := range points {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
	}

	ids := grid.Unique(points)

	ctx, span := s.tracer.Start(ctx, "community.RouteCommunityScore", trace.WithAttributes(
		attribute.Int("route.points", len(points)),
		attribute.Int("route.cells", len(ids)),
	))
	defer span.End()

	s.metrics.routeCells.Record(ctx, int64(len(ids)))

	if len(ids) == 0 {
		return &RouteScore{Score: NeutralScore}, nil
	}

	cells, err := s.fetchCells(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read cells failed")
		return nil, err
	}

	return summarize(ids, cells), nil
}

func summarize(ids []string, cells map[string]GridCell) *RouteScore {
	var sum, covered int
	for _, id := range ids {
		c := cells[id]
		sum += c.Score()
		if c.HasData() {
			covered++
		}
	}
	return &RouteScore{
		Score:        int(math.Round(float64(sum) / float64(len(ids)))),
		CoveredGrids: covered,
		TotalGrids:   len(ids),
	}
}

type cellBatch struct {
	cells map[string]GridCell
	err   error
}

// fetchCells reads ids in batches of batchSize with up to concurrency
// batches in flight. Any failed batch fails the whole read.
func (s *Service) fetchCells(ctx context.Context, ids []string) (map[string]GridCell, error) {
	out := make(map[string]GridCell, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	batches := chunk(ids, s.batchSize)
	batchCh := make(chan []string, len(batches))
	resultCh := make(chan cellBatch, len(batches))

	var wg sync.WaitGroup
	for i := 0; i < min(s.concurrency, len(batches)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range batchCh {
				cells, err := resilience.Execute(ctx, s.guard, func(ctx context.Context) (map[string]GridCell, error) {
					return s.repo.GetCells(ctx, batch)
				})
				if err != nil {
					// Let the remaining batches give up early.
					cancel()
				}
				resultCh <- cellBatch{cells: cells, err: err}
			}
		}()
	}

	for _, batch := range batches {
		batchCh <- batch
	}
	close(batchCh)

	wg.Wait()
	close(resultCh)

	var firstErr error
	for res := range resultCh {
		if res.err != nil {
			// Batches cut short by cancel() are not the cause.
			if firstErr == nil || errors.Is(firstErr, context.Canceled) {
				firstErr = res.err
			}
			continue
		}
		for id, c := range res.cells {
			out[id] = c
		}
	}

	if firstErr != nil {
		s.logger.Error().Err(firstErr).Int("cells", len(ids)).Msg("failed to read grid cells")
		return nil, storeError("read cells", firstErr)
	}
	return out, nil
}

func chunk(ids []string, size int) [][]string {
	batches := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		batches = append(batches, ids[start:end])
	}
	return batches
}
