package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/campuslink/portal-api/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dayPtr(y int, m time.Month, d int) *time.Time {
	t := day(y, m, d)
	return &t
}

func TestBuildEventQueryEmptyFilter(t *testing.T) {
	query := BuildEventQuery(models.EventFilter{})
	assert.Empty(t, query)
}

func TestBuildEventQueryDateWindow(t *testing.T) {
	from := day(2025, time.October, 1)
	to := day(2025, time.October, 31)

	query := BuildEventQuery(models.EventFilter{From: &from, To: &to})

	and, ok := query["$and"].([]bson.M)
	require.True(t, ok)
	require.Len(t, and, 1)

	or, ok := and[0]["$or"].([]bson.M)
	require.True(t, ok)
	require.Len(t, or, 4)
	assert.Equal(t, bson.M{"isoDate": bson.M{"$gte": from, "$lte": to}}, or[0])
	assert.Equal(t, bson.M{"startDate": bson.M{"$lte": from}, "endDate": bson.M{"$gte": to}}, or[3])
}

func TestBuildEventQueryOpenEndedWindow(t *testing.T) {
	t.Run("from only also matches range ends", func(t *testing.T) {
		from := day(2025, time.June, 1)
		query := BuildEventQuery(models.EventFilter{From: &from})

		and := query["$and"].([]bson.M)
		require.Len(t, and, 1)
		or, ok := and[0]["$or"].([]bson.M)
		require.True(t, ok)
		require.Len(t, or, 2)
		assert.Equal(t, bson.M{"isoDate": bson.M{"$gte": from}}, or[0])
		assert.Equal(t, bson.M{"endDate": bson.M{"$gte": from}}, or[1])
	})

	t.Run("to only also matches range starts", func(t *testing.T) {
		to := day(2025, time.June, 30)
		query := BuildEventQuery(models.EventFilter{To: &to})

		and := query["$and"].([]bson.M)
		require.Len(t, and, 1)
		or, ok := and[0]["$or"].([]bson.M)
		require.True(t, ok)
		require.Len(t, or, 2)
		assert.Equal(t, bson.M{"isoDate": bson.M{"$lte": to}}, or[0])
		assert.Equal(t, bson.M{"startDate": bson.M{"$lte": to}}, or[1])
	})
}

func TestBuildEventQuerySurfaces(t *testing.T) {
	t.Run("calendar surface", func(t *testing.T) {
		query := BuildEventQuery(models.EventFilter{Surface: models.SurfaceCalendar})
		assert.Equal(t, bson.M{"$in": models.CalendarCategories}, query["category"])
	})

	t.Run("feed surface", func(t *testing.T) {
		query := BuildEventQuery(models.EventFilter{Surface: models.SurfaceFeed})
		assert.Equal(t, bson.M{"$in": models.FeedCategories}, query["category"])
	})

	t.Run("explicit categories win over surface", func(t *testing.T) {
		query := BuildEventQuery(models.EventFilter{
			Surface:    models.SurfaceCalendar,
			Categories: []string{"Academic"},
		})
		assert.Equal(t, bson.M{"$in": []string{"Academic"}}, query["category"])
	})
}

func TestBuildEventQuerySemesterVariants(t *testing.T) {
	query := BuildEventQuery(models.EventFilter{Semester: "1"})
	in := query["semester"].(bson.M)["$in"].([]interface{})
	assert.Equal(t, []interface{}{"1", int32(1), int64(1), float64(1)}, in)

	query = BuildEventQuery(models.EventFilter{Semester: "Off"})
	in = query["semester"].(bson.M)["$in"].([]interface{})
	assert.Equal(t, []interface{}{"Off"}, in)
}

func TestBuildEventQueryAudience(t *testing.T) {
	t.Run("student sees student all and unscoped", func(t *testing.T) {
		query := BuildEventQuery(models.EventFilter{Audience: models.AudienceStudent})
		and := query["$and"].([]bson.M)
		require.Len(t, and, 1)
		or := and[0]["$or"].([]bson.M)
		require.Len(t, or, 2)
		assert.Equal(t, bson.M{"userType": bson.M{"$in": []string{"student", "all", ""}}}, or[0])
		assert.Equal(t, bson.M{"userType": bson.M{"$exists": false}}, or[1])
	})

	t.Run("all audience adds no clause", func(t *testing.T) {
		query := BuildEventQuery(models.EventFilter{Audience: models.AudienceAll})
		assert.NotContains(t, query, "$and")
	})
}

func TestBuildEventQueryExamOnly(t *testing.T) {
	query := BuildEventQuery(models.EventFilter{ExamOnly: true, DateType: models.DateTypeDate})
	assert.Contains(t, query, "title")
	assert.Equal(t, "date", query["dateType"])
}

func TestApplyYearGuard(t *testing.T) {
	events := []models.Event{
		{Title: "right year", ISODate: dayPtr(2025, time.October, 14)},
		{Title: "wrong year", ISODate: dayPtr(2024, time.October, 14)},
		{Title: "month only right", DateType: models.DateTypeMonthOnly, Year: 2025},
		{Title: "no year signal"},
	}

	t.Run("single year window filters", func(t *testing.T) {
		from := day(2025, time.January, 1)
		to := day(2025, time.December, 31)
		kept := ApplyYearGuard(append([]models.Event(nil), events...), &from, &to)
		titles := make([]string, 0, len(kept))
		for _, ev := range kept {
			titles = append(titles, ev.Title)
		}
		assert.Equal(t, []string{"right year", "month only right", "no year signal"}, titles)
	})

	t.Run("range straddling new year survives either year", func(t *testing.T) {
		straddler := []models.Event{{
			Title:     "enrollment window",
			DateType:  models.DateTypeRange,
			ISODate:   dayPtr(2025, time.January, 2),
			StartDate: dayPtr(2024, time.December, 28),
			EndDate:   dayPtr(2025, time.January, 5),
		}}

		from := day(2025, time.January, 1)
		to := day(2025, time.January, 31)
		kept := ApplyYearGuard(append([]models.Event(nil), straddler...), &from, &to)
		require.Len(t, kept, 1)

		from = day(2024, time.December, 1)
		to = day(2024, time.December, 31)
		kept = ApplyYearGuard(append([]models.Event(nil), straddler...), &from, &to)
		require.Len(t, kept, 1)
	})

	t.Run("range entirely in another year is dropped", func(t *testing.T) {
		lastYear := []models.Event{{
			Title:     "old sports fest",
			DateType:  models.DateTypeRange,
			ISODate:   dayPtr(2024, time.October, 14),
			StartDate: dayPtr(2024, time.October, 14),
			EndDate:   dayPtr(2024, time.October, 16),
		}}

		from := day(2025, time.January, 1)
		to := day(2025, time.December, 31)
		kept := ApplyYearGuard(append([]models.Event(nil), lastYear...), &from, &to)
		assert.Empty(t, kept)
	})

	t.Run("cross year window passes through", func(t *testing.T) {
		from := day(2024, time.August, 1)
		to := day(2025, time.May, 31)
		kept := ApplyYearGuard(append([]models.Event(nil), events...), &from, &to)
		assert.Len(t, kept, 4)
	})

	t.Run("nil bounds pass through", func(t *testing.T) {
		kept := ApplyYearGuard(append([]models.Event(nil), events...), nil, nil)
		assert.Len(t, kept, 4)
	})
}
