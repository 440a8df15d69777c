package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/campuslink/portal-api/internal/models"
)

// examTitleRe matches exam-keyword queries on whole words only, so
// "semifinal" does not leak into exam listings.
const examTitlePattern = `\b(prelim|midterm|final)\b`

// BuildEventQuery translates an EventFilter into a Mongo query document.
// It is a pure function so filter composition stays unit-testable without
// a running store.
func BuildEventQuery(f models.EventFilter) bson.M {
	query := bson.M{}
	var and []bson.M

	if f.From != nil && f.To != nil {
		and = append(and, dateOverlapClause(*f.From, *f.To))
	} else if f.From != nil {
		// A range that started earlier but runs past From still overlaps.
		and = append(and, bson.M{"$or": []bson.M{
			{"isoDate": bson.M{"$gte": *f.From}},
			{"endDate": bson.M{"$gte": *f.From}},
		}})
	} else if f.To != nil {
		and = append(and, bson.M{"$or": []bson.M{
			{"isoDate": bson.M{"$lte": *f.To}},
			{"startDate": bson.M{"$lte": *f.To}},
		}})
	}

	if len(f.Categories) > 0 {
		query["category"] = bson.M{"$in": f.Categories}
	} else {
		switch f.Surface {
		case models.SurfaceCalendar:
			query["category"] = bson.M{"$in": models.CalendarCategories}
		case models.SurfaceFeed:
			query["category"] = bson.M{"$in": models.FeedCategories}
		}
	}

	if f.Semester != "" {
		query["semester"] = bson.M{"$in": semesterVariants(f.Semester)}
	}

	if clause := audienceClause(f.Audience); clause != nil {
		and = append(and, clause)
	}

	if f.DateType != "" {
		query["dateType"] = string(f.DateType)
	}

	if f.ExamOnly {
		query["title"] = bson.M{"$regex": primitive.Regex{Pattern: examTitlePattern, Options: "i"}}
	}

	if len(and) > 0 {
		query["$and"] = and
	}
	return query
}

// dateOverlapClause matches an event when its single date falls inside the
// window, when either range endpoint falls inside the window, or when the
// event's range fully contains the window.
func dateOverlapClause(from, to time.Time) bson.M {
	return bson.M{"$or": []bson.M{
		{"isoDate": bson.M{"$gte": from, "$lte": to}},
		{"startDate": bson.M{"$gte": from, "$lte": to}},
		{"endDate": bson.M{"$gte": from, "$lte": to}},
		{"startDate": bson.M{"$lte": from}, "endDate": bson.M{"$gte": to}},
	}}
}

// semesterVariants covers both storage representations: our writes store
// strings, but documents migrated from the legacy backend hold numbers.
func semesterVariants(sem string) []interface{} {
	variants := []interface{}{sem}
	switch sem {
	case "1":
		variants = append(variants, int32(1), int64(1), float64(1))
	case "2":
		variants = append(variants, int32(2), int64(2), float64(2))
	}
	return variants
}

// audienceClause scopes results to an audience. Student and faculty
// queries also see unscoped/"all" events, but never each other's.
func audienceClause(aud models.Audience) bson.M {
	switch aud {
	case models.AudienceStudent, models.AudienceFaculty:
		return bson.M{"$or": []bson.M{
			{"userType": bson.M{"$in": []string{string(aud), string(models.AudienceAll), ""}}},
			{"userType": bson.M{"$exists": false}},
		}}
	default:
		return nil
	}
}

// ApplyYearGuard drops events none of whose date evidence falls in a
// single-year query window's year. The lenient range overlap above can
// otherwise pull in an event from the same weeks of a different year. A
// range straddling New Year keeps matching queries for either year.
func ApplyYearGuard(events []models.Event, from, to *time.Time) []models.Event {
	if from == nil || to == nil || from.Year() != to.Year() {
		return events
	}
	year := from.Year()
	kept := events[:0]
	for _, ev := range events {
		if !ev.InYear(year) {
			continue
		}
		kept = append(kept, ev)
	}
	return kept
}
