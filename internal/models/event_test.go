package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestSemesterBSONDecode(t *testing.T) {
	tests := []struct {
		name string
		doc  bson.M
		want Semester
	}{
		{"string", bson.M{"semester": "1"}, "1"},
		{"off string", bson.M{"semester": "Off"}, "Off"},
		{"int32 legacy", bson.M{"semester": int32(2)}, "2"},
		{"int64 legacy", bson.M{"semester": int64(1)}, "1"},
		{"double legacy", bson.M{"semester": float64(2)}, "2"},
		{"null", bson.M{"semester": nil}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := bson.Marshal(tt.doc)
			require.NoError(t, err)

			var decoded struct {
				Semester Semester `bson:"semester"`
			}
			require.NoError(t, bson.Unmarshal(raw, &decoded))
			assert.Equal(t, tt.want, decoded.Semester)
		})
	}
}

func TestDisplayDate(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  time.Time
	}{
		{
			name:  "single date",
			event: Event{DateType: DateTypeDate, ISODate: datePtr(2025, time.June, 2)},
			want:  time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "range occurrence uses its own day",
			event: Event{
				DateType:  DateTypeRange,
				ISODate:   datePtr(2025, time.October, 15),
				StartDate: datePtr(2025, time.October, 14),
				EndDate:   datePtr(2025, time.October, 16),
			},
			want: time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "month only pins to the first",
			event: Event{DateType: DateTypeMonthOnly, Month: 12, Year: 2025},
			want:  time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "week in month approximates",
			event: Event{DateType: DateTypeWeekInMonth, Month: 10, Year: 2025, WeekOfMonth: 3},
			want:  time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "late week clamps to 28",
			event: Event{DateType: DateTypeWeekInMonth, Month: 2, Year: 2025, WeekOfMonth: 6},
			want:  time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.event.DisplayDate().Equal(tt.want),
				"got %s want %s", tt.event.DisplayDate(), tt.want)
		})
	}
}

func TestInYear(t *testing.T) {
	single := &Event{DateType: DateTypeDate, ISODate: datePtr(2025, time.June, 2)}
	assert.True(t, single.InYear(2025))
	assert.False(t, single.InYear(2024))

	straddler := &Event{
		DateType:  DateTypeRange,
		ISODate:   datePtr(2025, time.January, 2),
		StartDate: datePtr(2024, time.December, 30),
		EndDate:   datePtr(2025, time.January, 5),
	}
	assert.True(t, straddler.InYear(2024))
	assert.True(t, straddler.InYear(2025))
	assert.False(t, straddler.InYear(2026))

	monthOnly := &Event{DateType: DateTypeMonthOnly, Year: 2026}
	assert.True(t, monthOnly.InYear(2026))
	assert.False(t, monthOnly.InYear(2025))

	assert.True(t, (&Event{}).InYear(2025), "no date evidence matches any year")
}

func TestSemanticFingerprint(t *testing.T) {
	base := Event{
		Title:    "Clearance Week",
		DateType: DateTypeDate,
		ISODate:  datePtr(2025, time.October, 20),
		Semester: "1",
	}

	t.Run("stable for equal fields", func(t *testing.T) {
		other := base
		assert.Equal(t, base.SemanticFingerprint(), other.SemanticFingerprint())
	})

	t.Run("changes with any semantic field", func(t *testing.T) {
		changed := base
		changed.Description = "new"
		assert.NotEqual(t, base.SemanticFingerprint(), changed.SemanticFingerprint())

		changed = base
		changed.ISODate = datePtr(2025, time.October, 21)
		assert.NotEqual(t, base.SemanticFingerprint(), changed.SemanticFingerprint())
	})

	t.Run("ignores non semantic fields", func(t *testing.T) {
		changed := base
		changed.ImageURL = "https://cdn.example.com/x.png"
		changed.UploadedBy = "someone-else"
		changed.UpdatedAt = time.Now()
		assert.Equal(t, base.SemanticFingerprint(), changed.SemanticFingerprint())
	})
}

func TestDateTypeValid(t *testing.T) {
	assert.True(t, DateTypeDate.Valid())
	assert.True(t, DateTypeRange.Valid())
	assert.True(t, DateTypeMonthOnly.Valid())
	assert.True(t, DateTypeWeekInMonth.Valid())
	assert.False(t, DateType("yearly").Valid())
}

func TestIsCalendarCategory(t *testing.T) {
	assert.True(t, IsCalendarCategory("Academic"))
	assert.True(t, IsCalendarCategory("institutional"))
	assert.False(t, IsCalendarCategory("News"))
}
