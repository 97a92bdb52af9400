package community_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/saferoute/saferoute/internal/community"
	"github.com/saferoute/saferoute/internal/grid"
	"github.com/saferoute/saferoute/internal/provider/resilience"
)

func TestRouteCommunityScore_NoPoints(t *testing.T) {
	svc := newTestService(community.NewInMemoryRepository(), newTestClock())

	score, err := svc.RouteCommunityScore(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, &community.RouteScore{Score: 50, CoveredGrids: 0, TotalGrids: 0}, score)
}

func TestRouteCommunityScore_NoFeedback(t *testing.T) {
	svc := newTestService(community.NewInMemoryRepository(), newTestClock())

	points := []grid.Point{{Lat: 1.0, Lng: 1.0}, {Lat: 1.01, Lng: 1.0}, {Lat: 1.02, Lng: 1.0}}
	score, err := svc.RouteCommunityScore(context.Background(), points)
	require.NoError(t, err)
	assert.Equal(t, 50, score.Score)
	assert.Equal(t, 0, score.CoveredGrids)
	assert.Equal(t, 3, score.TotalGrids)
}

func TestRouteCommunityScore_MixesCoveredAndUncovered(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(community.NewInMemoryRepository(), newTestClock())

	_, err := svc.SubmitFeedback(ctx, safeAt("user-1", 1.0, 1.0))
	require.NoError(t, err)
	_, err = svc.SubmitFeedback(ctx, unsafeAt("user-1", 1.02, 1.0))
	require.NoError(t, err)

	// Duplicate points in one cell count once.
	points := []grid.Point{
		{Lat: 1.0, Lng: 1.0},
		{Lat: 1.001, Lng: 1.001},
		{Lat: 1.01, Lng: 1.0},
		{Lat: 1.02, Lng: 1.0},
	}
	score, err := svc.RouteCommunityScore(ctx, points)
	require.NoError(t, err)
	// (100 + 50 + 0) / 3
	assert.Equal(t, 50, score.Score)
	assert.Equal(t, 2, score.CoveredGrids)
	assert.Equal(t, 3, score.TotalGrids)

	score, err = svc.RouteCommunityScore(ctx, points[:3])
	require.NoError(t, err)
	// (100 + 50) / 2
	assert.Equal(t, 75, score.Score)
	assert.Equal(t, 1, score.CoveredGrids)
	assert.Equal(t, 2, score.TotalGrids)
}

func TestRouteCommunityScore_InvalidPoint(t *testing.T) {
	svc := newTestService(community.NewInMemoryRepository(), newTestClock())

	_, err := svc.RouteCommunityScore(context.Background(), []grid.Point{{Lat: 1, Lng: 1}, {Lat: 95, Lng: 1}})
	assert.ErrorIs(t, err, grid.ErrInvalidCoordinates)
}

func batchedService(repo community.Repository, batchSize, concurrency int) *community.Service {
	guardCfg := resilience.DefaultGuardConfig(community.StoreGuardName)
	guardCfg.InitialInterval = time.Millisecond
	guardCfg.MaxInterval = 2 * time.Millisecond
	cbConfig := resilience.DefaultCircuitBreakerConfig(community.StoreGuardName)
	cbConfig.ReadyToTrip = func(gobreaker.Counts) bool { return false }
	guardCfg.CircuitBreaker = &cbConfig

	return community.NewService(community.ServiceConfig{
		Repository:       repo,
		Logger:           zerolog.Nop(),
		Guard:            &guardCfg,
		RouteBatchSize:   batchSize,
		RouteConcurrency: concurrency,
	})
}

func longRoute(cells int) []grid.Point {
	points := make([]grid.Point, 0, cells)
	for i := 0; i < cells; i++ {
		points = append(points, grid.Point{Lat: 10 + float64(i)*grid.Size, Lng: 20})
	}
	return points
}

func TestRouteCommunityScore_BatchedReads(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx := context.Background()
	inner := community.NewInMemoryRepository()
	seed := newTestService(inner, newTestClock())
	for i, p := range longRoute(23) {
		if i%2 == 0 {
			_, err := seed.SubmitFeedback(ctx, safeAt(fmt.Sprintf("user-%d", i), p.Lat, p.Lng))
			require.NoError(t, err)
		}
	}

	repo := &faultyRepository{Repository: inner}
	svc := batchedService(repo, 5, 2)

	score, err := svc.RouteCommunityScore(ctx, longRoute(23))
	require.NoError(t, err)
	assert.Equal(t, 23, score.TotalGrids)
	assert.Equal(t, 12, score.CoveredGrids)
	// (12*100 + 11*50) / 23 = 76.08
	assert.Equal(t, 76, score.Score)
	assert.Equal(t, int32(5), atomic.LoadInt32(&repo.readCalls))
}

func TestRouteCommunityScore_StoreFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	repo := &faultyRepository{
		Repository: community.NewInMemoryRepository(),
		readErr:    errors.New("connection refused"),
	}
	svc := batchedService(repo, 3, 4)

	score, err := svc.RouteCommunityScore(context.Background(), longRoute(20))
	assert.Nil(t, score)
	require.Error(t, err)
	assert.ErrorIs(t, err, community.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}
