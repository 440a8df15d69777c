package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/portal-api/internal/models"
	"github.com/campuslink/portal-api/internal/service"
	"github.com/campuslink/portal-api/pkg/config"
	"github.com/campuslink/portal-api/pkg/embedding"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, s.err
}

var _ embedding.Embedder = (*stubEmbedder)(nil)

type stubVectorRepo struct {
	results []models.ScoredEvent
	err     error
}

func (s *stubVectorRepo) VectorSearch(ctx context.Context, index, path string, vector []float32, numCandidates, limit int) ([]models.ScoredEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func (s *stubVectorRepo) ListWithEmbeddings(ctx context.Context, limit int) ([]models.Event, error) {
	return nil, nil
}

func buildSearchRouter(repo *stubVectorRepo, embedder embedding.Embedder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	embeddings := service.NewEmbeddingService(embedder, nil, nil)
	svc := service.NewSearchService(repo, embeddings, config.SearchConfig{}, nil, nil)
	h := NewSearchHandler(svc)

	router := gin.New()
	router.GET("/schedules/search", h.Search)
	return router
}

func TestSearchEndpoint(t *testing.T) {
	repo := &stubVectorRepo{results: []models.ScoredEvent{
		{Event: models.Event{Title: "Final Examinations"}, Score: 0.91},
	}}
	router := buildSearchRouter(repo, &stubEmbedder{vector: []float32{1, 0}})

	req, _ := http.NewRequest(http.MethodGet, "/schedules/search?q=when+are+finals&k=5", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "Final Examinations")
	assert.Contains(t, resp.Body.String(), `"score":91`)
	assert.Contains(t, resp.Body.String(), `"k":5`)
}

func TestSearchEndpointValidation(t *testing.T) {
	router := buildSearchRouter(&stubVectorRepo{}, &stubEmbedder{vector: []float32{1}})

	t.Run("missing q", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/schedules/search", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("bad k", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/schedules/search?q=x&k=999", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)
	})
}

func TestSearchEndpointEmbedderDown(t *testing.T) {
	router := buildSearchRouter(&stubVectorRepo{}, &stubEmbedder{err: errors.New("provider down")})

	req, _ := http.NewRequest(http.MethodGet, "/schedules/search?q=finals", nil)
	resp := performRequest(router, req)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
}
