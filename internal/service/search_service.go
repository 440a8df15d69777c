package service

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/campuslink/portal-api/internal/models"
	"github.com/campuslink/portal-api/pkg/config"
	appErrors "github.com/campuslink/portal-api/pkg/errors"
)

type vectorRepository interface {
	VectorSearch(ctx context.Context, index, path string, vector []float32, numCandidates, limit int) ([]models.ScoredEvent, error)
	ListWithEmbeddings(ctx context.Context, limit int) ([]models.Event, error)
}

// SearchService answers semantic schedule queries. The managed vector
// index is the primary path; any failure there drops to an in-process
// cosine ranking over a bounded candidate set, so search keeps working
// when the index is absent or misconfigured.
type SearchService struct {
	repo       vectorRepository
	embeddings *EmbeddingService
	cfg        config.SearchConfig
	metrics    *MetricsService
	logger     *zap.Logger
}

// NewSearchService constructs the service.
func NewSearchService(repo vectorRepository, embeddings *EmbeddingService, cfg config.SearchConfig, metrics *MetricsService, logger *zap.Logger) *SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CandidateFactor <= 0 {
		cfg.CandidateFactor = 10
	}
	if cfg.CandidateFloor <= 0 {
		cfg.CandidateFloor = 100
	}
	if cfg.FallbackScanLimit <= 0 {
		cfg.FallbackScanLimit = 500
	}
	return &SearchService{repo: repo, embeddings: embeddings, cfg: cfg, metrics: metrics, logger: logger}
}

// Search embeds the query text and returns the top-k events ranked by
// similarity, scored 0-100 for display.
func (s *SearchService) Search(ctx context.Context, query string, k int) ([]models.ScoredEvent, error) {
	if k <= 0 {
		k = 10
	}

	vector, err := s.embeddings.EmbedQuery(ctx, query)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "semantic search unavailable")
	}

	numCandidates := k * s.cfg.CandidateFactor
	if numCandidates < s.cfg.CandidateFloor {
		numCandidates = s.cfg.CandidateFloor
	}

	results, err := s.repo.VectorSearch(ctx, s.cfg.IndexName, s.cfg.VectorPath, vector, numCandidates, k)
	if err == nil {
		for i := range results {
			results[i].Score = normalizeScore(results[i].Score)
		}
		return results, nil
	}

	if s.metrics != nil {
		s.metrics.RecordSearchFallback()
	}
	s.logger.Warn("vector index unavailable, using cosine fallback", zap.Error(err))
	return s.fallbackSearch(ctx, vector, k)
}

// fallbackSearch is the reliability backstop: exhaustive cosine ranking
// over every stored event that carries a vector, bounded by the scan limit.
func (s *SearchService) fallbackSearch(ctx context.Context, vector []float32, k int) ([]models.ScoredEvent, error) {
	candidates, err := s.repo.ListWithEmbeddings(ctx, s.cfg.FallbackScanLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load search candidates")
	}

	scored := make([]models.ScoredEvent, 0, len(candidates))
	for _, candidate := range candidates {
		similarity := Cosine(vector, candidate.Embedding)
		scored = append(scored, models.ScoredEvent{Event: candidate, Score: normalizeScore(similarity)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Cosine computes cosine similarity dot/(|a||b|). It is defined as 0 when
// either vector has zero norm or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// normalizeScore maps a provider-native similarity in [0,1] (or a raw
// cosine) onto the 0-100 display scale.
func normalizeScore(similarity float64) float64 {
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	return math.Round(similarity*10000) / 100
}
