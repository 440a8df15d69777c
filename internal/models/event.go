package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// DateType selects which date fields of an Event are authoritative.
type DateType string

const (
	DateTypeDate        DateType = "date"
	DateTypeRange       DateType = "date_range"
	DateTypeMonthOnly   DateType = "month_only"
	DateTypeWeekInMonth DateType = "week_in_month"
)

// Valid reports whether dt is a known date type.
func (dt DateType) Valid() bool {
	switch dt {
	case DateTypeDate, DateTypeRange, DateTypeMonthOnly, DateTypeWeekInMonth:
		return true
	}
	return false
}

// Audience scopes an event to a portal user group.
type Audience string

const (
	AudienceStudent Audience = "student"
	AudienceFaculty Audience = "faculty"
	AudienceAll     Audience = "all"
)

// Semester is stored as "1", "2" or the sentinel "Off". Legacy documents
// carry it as a number, so decoding accepts both representations.
type Semester string

const SemesterOff Semester = "Off"

// UnmarshalBSONValue accepts string and numeric storage representations.
func (s *Semester) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.String:
		v, _, ok := bsoncore.ReadString(data)
		if !ok {
			return fmt.Errorf("semester: corrupt string value")
		}
		*s = Semester(v)
	case bsontype.Int32:
		v, _, ok := bsoncore.ReadInt32(data)
		if !ok {
			return fmt.Errorf("semester: corrupt int32 value")
		}
		*s = Semester(strconv.Itoa(int(v)))
	case bsontype.Int64:
		v, _, ok := bsoncore.ReadInt64(data)
		if !ok {
			return fmt.Errorf("semester: corrupt int64 value")
		}
		*s = Semester(strconv.FormatInt(v, 10))
	case bsontype.Double:
		v, _, ok := bsoncore.ReadDouble(data)
		if !ok {
			return fmt.Errorf("semester: corrupt double value")
		}
		*s = Semester(strconv.Itoa(int(v)))
	case bsontype.Null, bsontype.Undefined:
		*s = ""
	default:
		return fmt.Errorf("semester: unsupported bson type %s", t)
	}
	return nil
}

// Category domains. Calendar categories feed the mobile calendar view,
// feed categories feed the announcement stream; the two never mix in a
// single query result.
var (
	CalendarCategories = []string{"Institutional", "Academic"}
	FeedCategories     = []string{"Announcement", "News", "Event"}
)

// IsCalendarCategory reports whether the category belongs to the calendar domain.
func IsCalendarCategory(category string) bool {
	for _, c := range CalendarCategories {
		if strings.EqualFold(c, category) {
			return true
		}
	}
	return false
}

// Event is one schedule/announcement record. Exactly one date
// representation is authoritative, keyed by DateType; the remaining date
// fields are derived for display and sorting and must not contradict it.
type Event struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Category    string             `bson:"category,omitempty" json:"category,omitempty"`
	DateType    DateType           `bson:"dateType" json:"date_type"`

	ISODate     *time.Time `bson:"isoDate,omitempty" json:"iso_date,omitempty"`
	StartDate   *time.Time `bson:"startDate,omitempty" json:"start_date,omitempty"`
	EndDate     *time.Time `bson:"endDate,omitempty" json:"end_date,omitempty"`
	Month       int        `bson:"month,omitempty" json:"month,omitempty"`
	Year        int        `bson:"year,omitempty" json:"year,omitempty"`
	WeekOfMonth int        `bson:"weekOfMonth,omitempty" json:"week_of_month,omitempty"`

	Time       string    `bson:"time,omitempty" json:"time,omitempty"`
	Semester   Semester  `bson:"semester,omitempty" json:"semester,omitempty"`
	UserType   Audience  `bson:"userType,omitempty" json:"user_type,omitempty"`
	Embedding  []float32 `bson:"embedding,omitempty" json:"-"`
	ImageURL   string    `bson:"imageUrl,omitempty" json:"image_url,omitempty"`
	Source     string    `bson:"source,omitempty" json:"source,omitempty"`
	UploadedBy string    `bson:"uploadedBy,omitempty" json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt  time.Time `bson:"updatedAt" json:"updated_at"`
}

// DisplayDate is the sort/display date derived from the authoritative fields.
func (e *Event) DisplayDate() time.Time {
	switch e.DateType {
	case DateTypeRange:
		if e.ISODate != nil {
			return *e.ISODate
		}
		if e.StartDate != nil {
			return *e.StartDate
		}
	case DateTypeMonthOnly:
		if e.Month >= 1 && e.Year > 0 {
			return time.Date(e.Year, time.Month(e.Month), 1, 0, 0, 0, 0, time.UTC)
		}
	case DateTypeWeekInMonth:
		if e.Month >= 1 && e.Year > 0 {
			day := (e.WeekOfMonth-1)*7 + 1
			if day < 1 {
				day = 1
			}
			if day > 28 {
				day = 28
			}
			return time.Date(e.Year, time.Month(e.Month), day, 0, 0, 0, 0, time.UTC)
		}
	}
	if e.ISODate != nil {
		return *e.ISODate
	}
	return time.Time{}
}

// InYear reports whether any of the event's authoritative date fields
// falls in the given calendar year. A range straddling New Year belongs
// to both years. Events with no date evidence match every year.
func (e *Event) InYear(year int) bool {
	var evidence []int
	switch e.DateType {
	case DateTypeRange:
		for _, t := range []*time.Time{e.ISODate, e.StartDate, e.EndDate} {
			if t != nil {
				evidence = append(evidence, t.Year())
			}
		}
	case DateTypeMonthOnly, DateTypeWeekInMonth:
		if e.Year > 0 {
			evidence = append(evidence, e.Year)
		}
	}
	if len(evidence) == 0 && e.ISODate != nil {
		evidence = append(evidence, e.ISODate.Year())
	}
	if len(evidence) == 0 {
		return true
	}
	for _, y := range evidence {
		if y == year {
			return true
		}
	}
	return false
}

// SemanticFingerprint captures every field that feeds the embedding text.
// Two events with equal fingerprints embed identically, so an update that
// leaves the fingerprint unchanged does not need a new vector.
func (e *Event) SemanticFingerprint() string {
	parts := []string{
		e.Title,
		e.Description,
		e.Category,
		string(e.DateType),
		formatDatePtr(e.ISODate),
		formatDatePtr(e.StartDate),
		formatDatePtr(e.EndDate),
		strconv.Itoa(e.Month),
		strconv.Itoa(e.Year),
		strconv.Itoa(e.WeekOfMonth),
		e.Time,
		string(e.Semester),
		string(e.UserType),
	}
	return strings.Join(parts, "|")
}

func formatDatePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// ScoredEvent pairs an event with a similarity score in [0, 100].
type ScoredEvent struct {
	Event `bson:",inline"`
	Score float64 `bson:"score" json:"score"`
}

// Surface selects which category domain a structured query returns.
type Surface string

const (
	SurfaceCalendar Surface = "calendar"
	SurfaceFeed     Surface = "feed"
)

// EventFilter narrows down structured schedule queries.
type EventFilter struct {
	From       *time.Time
	To         *time.Time
	Surface    Surface
	Categories []string
	Semester   string
	Audience   Audience
	DateType   DateType
	ExamOnly   bool
	Limit      int
	Skip       int
}

// IngestSummary reports the outcome of a bulk spreadsheet upload.
type IngestSummary struct {
	Inserted       int `json:"inserted"`
	Updated        int `json:"updated"`
	Skipped        int `json:"skipped"`
	TotalProcessed int `json:"total_processed"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// JWTClaims is the token payload issued by the external auth service.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}
