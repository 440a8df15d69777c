package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campuslink/portal-api/internal/models"
)

type mockBackfillRepo struct {
	mu      sync.Mutex
	pending []models.Event
	written map[string][]float32
	setErr  error
	listErr error
}

func newMockBackfillRepo(pending ...models.Event) *mockBackfillRepo {
	return &mockBackfillRepo{pending: pending, written: make(map[string][]float32)}
}

func (m *mockBackfillRepo) ListMissingEmbeddings(ctx context.Context, limit int) ([]models.Event, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if limit > 0 && len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *mockBackfillRepo) SetEmbedding(ctx context.Context, id primitive.ObjectID, vector []float32) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written[id.Hex()] = vector
	return nil
}

func pendingEvent(title string) models.Event {
	iso := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	return models.Event{
		ID:       primitive.NewObjectID(),
		Title:    title,
		DateType: models.DateTypeDate,
		ISODate:  &iso,
	}
}

func TestBackfillRunOnce(t *testing.T) {
	repo := newMockBackfillRepo(pendingEvent("A"), pendingEvent("B"), pendingEvent("C"))
	embeddings := NewEmbeddingService(&mockEmbedder{vector: []float32{0.1}}, nil, nil)
	svc := NewBackfillService(repo, embeddings, BackfillConfig{Workers: 2, BatchSize: 10}, nil)

	repaired, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, repaired)
	assert.Len(t, repo.written, 3)
}

func TestBackfillSkipsProviderFailures(t *testing.T) {
	repo := newMockBackfillRepo(pendingEvent("A"))
	embeddings := NewEmbeddingService(&mockEmbedder{err: errors.New("provider down")}, nil, nil)
	svc := NewBackfillService(repo, embeddings, BackfillConfig{}, nil)

	repaired, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, repaired)
	assert.Empty(t, repo.written)
}

func TestBackfillSkipsWriteFailures(t *testing.T) {
	repo := newMockBackfillRepo(pendingEvent("A"))
	repo.setErr = errors.New("store down")
	embeddings := NewEmbeddingService(&mockEmbedder{vector: []float32{0.1}}, nil, nil)
	svc := NewBackfillService(repo, embeddings, BackfillConfig{}, nil)

	repaired, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestBackfillNothingPending(t *testing.T) {
	repo := newMockBackfillRepo()
	embeddings := NewEmbeddingService(&mockEmbedder{vector: []float32{0.1}}, nil, nil)
	svc := NewBackfillService(repo, embeddings, BackfillConfig{}, nil)

	repaired, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestBackfillStartDisabledWithoutProvider(t *testing.T) {
	repo := newMockBackfillRepo(pendingEvent("A"))
	embeddings := NewEmbeddingService(nil, nil, nil)
	svc := NewBackfillService(repo, embeddings, BackfillConfig{Interval: time.Millisecond}, nil)

	svc.Start(context.Background())
	svc.Stop()
	assert.Empty(t, repo.written)
}
