package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campuslink/portal-api/internal/models"
	"github.com/campuslink/portal-api/pkg/embedding"
)

// EmbeddingService renders events into descriptive text and obtains
// vectors from the external provider. Provider failures are logged and
// swallowed: an event without a vector is a degraded state, not an error.
type EmbeddingService struct {
	embedder embedding.Embedder
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewEmbeddingService constructs the service. A nil embedder disables
// vector generation entirely.
func NewEmbeddingService(embedder embedding.Embedder, metrics *MetricsService, logger *zap.Logger) *EmbeddingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingService{embedder: embedder, metrics: metrics, logger: logger}
}

// Enabled reports whether an embedding provider is configured.
func (s *EmbeddingService) Enabled() bool {
	return s != nil && s.embedder != nil
}

// EmbedEvent computes a vector for the event's current field values.
// It returns nil on provider failure; the caller persists the event
// without a vector and retrieval degrades gracefully for it.
func (s *EmbeddingService) EmbedEvent(ctx context.Context, event *models.Event) []float32 {
	if !s.Enabled() {
		return nil
	}

	vector, err := s.embedder.Embed(ctx, Describe(event))
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordEmbeddingFailure()
		}
		s.logger.Warn("embedding provider failed, persisting event without vector",
			zap.String("title", event.Title), zap.Error(err))
		return nil
	}
	return vector
}

// EmbedQuery computes a vector for free-form search text.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("embedding provider not configured")
	}
	return s.embedder.Embed(ctx, text)
}

// Describe deterministically renders an event into one descriptive string
// for embedding. Dates are spelled several ways so lexical recall works
// for users typing any common format.
func Describe(event *models.Event) string {
	var b strings.Builder

	b.WriteString(event.Title)
	b.WriteString(".")
	if event.Description != "" {
		b.WriteString(" ")
		b.WriteString(event.Description)
		if !strings.HasSuffix(event.Description, ".") {
			b.WriteString(".")
		}
	}
	if event.Category != "" {
		b.WriteString(" Category: ")
		b.WriteString(event.Category)
		b.WriteString(".")
	}

	if phrase := datePhrase(event); phrase != "" {
		b.WriteString(" ")
		b.WriteString(phrase)
	}

	if event.Time != "" && !strings.EqualFold(event.Time, "All Day") {
		b.WriteString(" Time: ")
		b.WriteString(event.Time)
		b.WriteString(".")
	}

	switch event.Semester {
	case "":
	case models.SemesterOff:
		b.WriteString(" During the off semester.")
	default:
		b.WriteString(" Semester ")
		b.WriteString(string(event.Semester))
		b.WriteString(".")
	}

	switch event.UserType {
	case models.AudienceStudent:
		b.WriteString(" For students.")
	case models.AudienceFaculty:
		b.WriteString(" For faculty.")
	default:
		b.WriteString(" For all students and faculty.")
	}

	return b.String()
}

func datePhrase(event *models.Event) string {
	switch event.DateType {
	case models.DateTypeRange:
		if event.StartDate != nil && event.EndDate != nil {
			phrase := fmt.Sprintf("From %s to %s (%s to %s).",
				longDate(*event.StartDate), longDate(*event.EndDate),
				isoDate(*event.StartDate), isoDate(*event.EndDate))
			if event.ISODate != nil {
				phrase += fmt.Sprintf(" This occurrence falls on %s.", longDate(*event.ISODate))
			}
			return phrase
		}
	case models.DateTypeMonthOnly:
		if event.Month >= 1 && event.Month <= 12 {
			return fmt.Sprintf("During %s %d.", time.Month(event.Month), event.Year)
		}
	case models.DateTypeWeekInMonth:
		if event.Month >= 1 && event.Month <= 12 {
			return fmt.Sprintf("Week %d of %s %d.", event.WeekOfMonth, time.Month(event.Month), event.Year)
		}
	}
	if event.ISODate != nil {
		d := *event.ISODate
		return fmt.Sprintf("On %s (%s, %s).", longDate(d), isoDate(d), d.Format("01/02/2006"))
	}
	return ""
}

func longDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

func isoDate(t time.Time) string {
	return t.Format("2006-01-02")
}
