package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/portal-api/internal/models"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestDescribe(t *testing.T) {
	t.Run("single date event", func(t *testing.T) {
		text := Describe(&models.Event{
			Title:       "Enrollment Day",
			Description: "First day of enrollment",
			Category:    "Academic",
			DateType:    models.DateTypeDate,
			ISODate:     datePtr(2025, time.June, 2),
			Time:        "8:00 AM",
			Semester:    "1",
			UserType:    models.AudienceStudent,
		})

		assert.Equal(t, "Enrollment Day. First day of enrollment. Category: Academic."+
			" On June 2, 2025 (2025-06-02, 06/02/2025). Time: 8:00 AM. Semester 1. For students.", text)
	})

	t.Run("range occurrence names both range and day", func(t *testing.T) {
		text := Describe(&models.Event{
			Title:     "Final Examinations",
			DateType:  models.DateTypeRange,
			ISODate:   datePtr(2025, time.October, 15),
			StartDate: datePtr(2025, time.October, 14),
			EndDate:   datePtr(2025, time.October, 16),
		})

		assert.Contains(t, text, "From October 14, 2025 to October 16, 2025")
		assert.Contains(t, text, "This occurrence falls on October 15, 2025.")
		assert.Contains(t, text, "For all students and faculty.")
	})

	t.Run("month only", func(t *testing.T) {
		text := Describe(&models.Event{
			Title:    "Intramurals",
			DateType: models.DateTypeMonthOnly,
			Month:    12,
			Year:     2025,
			Semester: models.SemesterOff,
		})
		assert.Contains(t, text, "During December 2025.")
		assert.Contains(t, text, "During the off semester.")
	})

	t.Run("week in month", func(t *testing.T) {
		text := Describe(&models.Event{
			Title:       "Midterm Examinations",
			DateType:    models.DateTypeWeekInMonth,
			Month:       10,
			Year:        2025,
			WeekOfMonth: 3,
			UserType:    models.AudienceFaculty,
		})
		assert.Contains(t, text, "Week 3 of October 2025.")
		assert.Contains(t, text, "For faculty.")
	})

	t.Run("all day time omitted", func(t *testing.T) {
		text := Describe(&models.Event{Title: "Holiday", Time: "All Day"})
		assert.NotContains(t, text, "Time:")
	})

	t.Run("deterministic", func(t *testing.T) {
		ev := &models.Event{Title: "X", DateType: models.DateTypeDate, ISODate: datePtr(2025, time.May, 1)}
		assert.Equal(t, Describe(ev), Describe(ev))
	})
}

func TestEmbedEvent(t *testing.T) {
	t.Run("nil embedder yields nil vector", func(t *testing.T) {
		svc := NewEmbeddingService(nil, nil, nil)
		assert.Nil(t, svc.EmbedEvent(context.Background(), &models.Event{Title: "X"}))
		assert.False(t, svc.Enabled())
	})

	t.Run("provider failure yields nil vector", func(t *testing.T) {
		embedder := &mockEmbedder{err: errors.New("timeout")}
		svc := NewEmbeddingService(embedder, nil, nil)
		assert.Nil(t, svc.EmbedEvent(context.Background(), &models.Event{Title: "X"}))
		assert.Equal(t, 1, embedder.calls)
	})

	t.Run("success returns provider vector", func(t *testing.T) {
		embedder := &mockEmbedder{vector: []float32{0.1, 0.2}}
		svc := NewEmbeddingService(embedder, nil, nil)

		vector := svc.EmbedEvent(context.Background(), &models.Event{Title: "Enrollment Day"})
		assert.Equal(t, []float32{0.1, 0.2}, vector)
		require.Len(t, embedder.texts, 1)
		assert.Contains(t, embedder.texts[0], "Enrollment Day")
	})
}
