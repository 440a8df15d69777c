package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/campuslink/portal-api/internal/models"
)

// defaultCategory is applied when the sheet has no category column. The
// upload surface is the academic calendar, so rows land there.
const defaultCategory = "Institutional"

const defaultTimeLabel = "All Day"

// invalidDateSentinels are values uploaders use to mean "no date yet".
// Rows carrying them are skipped with a warning, never rejected.
var invalidDateSentinels = map[string]struct{}{
	"":                {},
	"-":               {},
	"n/a":             {},
	"na":              {},
	"tbd":             {},
	"tba":             {},
	"within semester": {},
	"whole semester":  {},
}

var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var (
	monthDayListRe = regexp.MustCompile(`^([A-Za-z]+)\.?\s+(\d{1,2}(?:\s*(?:,|&|and)\s*\d{1,2})*)(?:\s*,?\s*(\d{4}))?$`)
	monthWeekRe    = regexp.MustCompile(`^([A-Za-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\s+week$`)
	dayNumberRe    = regexp.MustCompile(`\d{1,2}`)
)

// Normalizer converts detected spreadsheet rows into canonical event
// occurrences.
type Normalizer struct {
	defaultYear int
}

// NewNormalizer constructs a normalizer. Rows whose date expression lacks
// a year get defaultYear; pass 0 to use the current year.
func NewNormalizer(defaultYear int) *Normalizer {
	if defaultYear == 0 {
		defaultYear = time.Now().Year()
	}
	return &Normalizer{defaultYear: defaultYear}
}

// NormalizeRow converts one data row into zero or more event occurrences.
// A row that cannot produce an occurrence returns warnings instead of an
// error: a single bad row must never abort a whole upload.
func (n *Normalizer) NormalizeRow(fm FieldMap, record []string) ([]models.Event, []string) {
	var warnings []string

	title := fm.Value(FieldTitle, record)
	if title == "" {
		return nil, []string{"row has no title, skipped"}
	}

	base := models.Event{
		Title:       title,
		Description: fm.Value(FieldDescription, record),
		Category:    fm.Value(FieldCategory, record),
		Time:        fm.Value(FieldTime, record),
	}
	if base.Category == "" {
		base.Category = defaultCategory
	}
	if base.Time == "" {
		base.Time = defaultTimeLabel
	}

	if raw := fm.Value(FieldSemester, record); raw != "" {
		if sem, ok := NormalizeSemester(raw); ok {
			base.Semester = sem
		} else {
			warnings = append(warnings, fmt.Sprintf("unrecognized semester %q dropped", raw))
		}
	}
	if raw := fm.Value(FieldUserType, record); raw != "" {
		if aud, ok := NormalizeAudience(raw); ok {
			base.UserType = aud
		}
	}

	events, dateWarnings := n.expandDates(fm, record, base)
	warnings = append(warnings, dateWarnings...)
	return events, warnings
}

func (n *Normalizer) expandDates(fm FieldMap, record []string, base models.Event) ([]models.Event, []string) {
	switch normalizeDateType(fm.Value(FieldDateType, record)) {
	case models.DateTypeRange:
		return n.expandRange(fm, record, base)
	case models.DateTypeMonthOnly:
		return n.expandMonthOnly(fm, record, base)
	case models.DateTypeWeekInMonth:
		return n.expandWeekInMonth(fm, record, base)
	default:
		return n.expandSingle(fm, record, base)
	}
}

// expandRange produces one occurrence per inclusive calendar day so every
// day of a multi-day event is independently queryable; each occurrence
// retains the full range for range-aware filters. Equal endpoints collapse
// to a plain single-day event.
func (n *Normalizer) expandRange(fm FieldMap, record []string, base models.Event) ([]models.Event, []string) {
	startRaw := fm.Value(FieldStartDate, record)
	endRaw := fm.Value(FieldEndDate, record)

	start, ok := n.parseSingleDate(startRaw)
	if !ok {
		return nil, []string{fmt.Sprintf("row %q: unparseable start date %q, skipped", base.Title, startRaw)}
	}
	end, ok := n.parseSingleDate(endRaw)
	if !ok {
		return nil, []string{fmt.Sprintf("row %q: unparseable end date %q, skipped", base.Title, endRaw)}
	}
	if end.Before(start) {
		return nil, []string{fmt.Sprintf("row %q: end date %s precedes start date %s, skipped", base.Title, endRaw, startRaw)}
	}

	if start.Equal(end) {
		ev := base
		ev.DateType = models.DateTypeDate
		ev.ISODate = timePtr(start)
		return []models.Event{ev}, nil
	}

	var events []models.Event
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		ev := base
		ev.DateType = models.DateTypeRange
		ev.ISODate = timePtr(d)
		ev.StartDate = timePtr(start)
		ev.EndDate = timePtr(end)
		events = append(events, ev)
	}
	return events, nil
}

func (n *Normalizer) expandMonthOnly(fm FieldMap, record []string, base models.Event) ([]models.Event, []string) {
	month, year := n.monthYearFromRecord(fm, record)
	if month == 0 {
		raw := fm.Value(FieldDate, record)
		if m, ok := parseMonthName(raw); ok {
			month = m
		} else {
			return nil, []string{fmt.Sprintf("row %q: no usable month value, skipped", base.Title)}
		}
	}
	ev := base
	ev.DateType = models.DateTypeMonthOnly
	ev.Month = int(month)
	ev.Year = year
	ev.ISODate = timePtr(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
	return []models.Event{ev}, nil
}

func (n *Normalizer) expandWeekInMonth(fm FieldMap, record []string, base models.Event) ([]models.Event, []string) {
	month, year := n.monthYearFromRecord(fm, record)
	week := 0
	if raw := fm.Value(FieldWeek, record); raw != "" {
		if w, err := strconv.Atoi(raw); err == nil {
			week = w
		}
	}
	if month == 0 || week == 0 {
		raw := strings.ToLower(strings.TrimSpace(fm.Value(FieldDate, record)))
		if m := monthWeekRe.FindStringSubmatch(raw); m != nil {
			if mo, ok := parseMonthName(m[1]); ok {
				month = mo
			}
			week, _ = strconv.Atoi(m[2])
		}
	}
	if month == 0 || week < 1 {
		return nil, []string{fmt.Sprintf("row %q: no usable week-in-month value, skipped", base.Title)}
	}

	ev := base
	ev.DateType = models.DateTypeWeekInMonth
	ev.Month = int(month)
	ev.Year = year
	ev.WeekOfMonth = week
	ev.ISODate = timePtr(time.Date(year, month, ApproximateWeekDay(week), 0, 0, 0, 0, time.UTC))
	return []models.Event{ev}, nil
}

func (n *Normalizer) expandSingle(fm FieldMap, record []string, base models.Event) ([]models.Event, []string) {
	raw := fm.Value(FieldDate, record)
	if raw == "" {
		// Sheets without a DateType column sometimes still use the
		// start/end pair for single dates.
		raw = fm.Value(FieldStartDate, record)
	}
	if isInvalidSentinel(raw) {
		return nil, []string{fmt.Sprintf("row %q: date %q is not schedulable, skipped", base.Title, raw)}
	}

	result, ok := n.parseDateExpression(raw)
	if !ok {
		return nil, []string{fmt.Sprintf("row %q: unparseable date %q, skipped", base.Title, raw)}
	}

	switch result.kind {
	case models.DateTypeMonthOnly:
		ev := base
		ev.DateType = models.DateTypeMonthOnly
		ev.Month = result.month
		ev.Year = result.year
		ev.ISODate = timePtr(time.Date(result.year, time.Month(result.month), 1, 0, 0, 0, 0, time.UTC))
		return []models.Event{ev}, nil
	case models.DateTypeWeekInMonth:
		ev := base
		ev.DateType = models.DateTypeWeekInMonth
		ev.Month = result.month
		ev.Year = result.year
		ev.WeekOfMonth = result.week
		ev.ISODate = timePtr(time.Date(result.year, time.Month(result.month), ApproximateWeekDay(result.week), 0, 0, 0, 0, time.UTC))
		return []models.Event{ev}, nil
	default:
		events := make([]models.Event, 0, len(result.dates))
		for _, d := range result.dates {
			ev := base
			ev.DateType = models.DateTypeDate
			ev.ISODate = timePtr(d)
			events = append(events, ev)
		}
		return events, nil
	}
}

func (n *Normalizer) monthYearFromRecord(fm FieldMap, record []string) (time.Month, int) {
	var month time.Month
	if raw := fm.Value(FieldMonth, record); raw != "" {
		if m, ok := parseMonthName(raw); ok {
			month = m
		} else if v, err := strconv.Atoi(raw); err == nil && v >= 1 && v <= 12 {
			month = time.Month(v)
		}
	}
	year := n.defaultYear
	if raw := fm.Value(FieldYear, record); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			year = v
		}
	}
	return month, year
}

type dateResult struct {
	kind  models.DateType
	dates []time.Time
	month int
	year  int
	week  int
}

// parseDateExpression runs the ordered cascade over one date cell:
// machine formats first, then the natural-language forms found in
// hand-maintained sheets.
func (n *Normalizer) parseDateExpression(raw string) (dateResult, bool) {
	raw = strings.TrimSpace(raw)
	if isInvalidSentinel(raw) {
		return dateResult{}, false
	}

	if d, ok := n.parseSingleDate(raw); ok {
		return dateResult{kind: models.DateTypeDate, dates: []time.Time{d}}, true
	}

	lowered := strings.ToLower(raw)

	if m := monthWeekRe.FindStringSubmatch(lowered); m != nil {
		month, ok := parseMonthName(m[1])
		if !ok {
			return dateResult{}, false
		}
		week, _ := strconv.Atoi(m[2])
		if week < 1 {
			return dateResult{}, false
		}
		return dateResult{kind: models.DateTypeWeekInMonth, month: int(month), year: n.defaultYear, week: week}, true
	}

	if m := monthDayListRe.FindStringSubmatch(raw); m != nil {
		month, ok := parseMonthName(m[1])
		if !ok {
			return dateResult{}, false
		}
		year := n.defaultYear
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		var dates []time.Time
		for _, dayStr := range dayNumberRe.FindAllString(m[2], -1) {
			day, _ := strconv.Atoi(dayStr)
			if day < 1 || day > 31 {
				continue
			}
			dates = append(dates, time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
		}
		if len(dates) == 0 {
			return dateResult{}, false
		}
		return dateResult{kind: models.DateTypeDate, dates: dates}, true
	}

	if month, ok := parseMonthName(lowered); ok {
		return dateResult{kind: models.DateTypeMonthOnly, month: int(month), year: n.defaultYear}, true
	}

	return dateResult{}, false
}

func (n *Normalizer) parseSingleDate(raw string) (time.Time, bool) {
	return ParseDate(raw)
}

// ParseDate handles the machine-readable half of the cascade.
// MM/DD/YYYY is tried before DD/MM/YYYY: the primary upload client emits
// US-style dates, so ambiguous values resolve that way.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if isInvalidSentinel(raw) {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC().Truncate(24 * time.Hour), true
	}
	for _, layout := range []string{"01/02/2006", "02/01/2006", "2006-01-02", "02-01-2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func normalizeDateType(raw string) models.DateType {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "_", "")
	switch key {
	case "daterange", "range":
		return models.DateTypeRange
	case "monthonly", "month":
		return models.DateTypeMonthOnly
	case "weekinmonth", "week":
		return models.DateTypeWeekInMonth
	default:
		return models.DateTypeDate
	}
}

// NormalizeSemester accepts numeric, ordinal-word and "Off" spellings.
func NormalizeSemester(raw string) (models.Semester, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, " ", "")
	key = strings.TrimPrefix(key, "semester")
	key = strings.TrimPrefix(key, "sem")

	switch key {
	case "1", "first", "one", "i", "1st":
		return "1", true
	case "2", "second", "two", "ii", "2nd":
		return "2", true
	case "off":
		return models.SemesterOff, true
	}
	return "", false
}

// NormalizeAudience maps synonym sets to the canonical audience values.
// Unrecognized values are simply unset, which downstream treats as "all".
func NormalizeAudience(raw string) (models.Audience, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "student", "students", "learner", "learners", "pupil", "pupils":
		return models.AudienceStudent, true
	case "faculty", "teacher", "teachers", "staff", "instructor", "instructors":
		return models.AudienceFaculty, true
	case "all", "everyone", "both", "general":
		return models.AudienceAll, true
	}
	return "", false
}

// ApproximateWeekDay is a display heuristic, not a calendar-accurate week
// computation: day = (week-1)*7+1, clamped to 28.
func ApproximateWeekDay(week int) int {
	day := (week-1)*7 + 1
	if day < 1 {
		day = 1
	}
	if day > 28 {
		day = 28
	}
	return day
}

func parseMonthName(raw string) (time.Month, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.TrimSuffix(key, ".")
	m, ok := monthsByName[key]
	return m, ok
}

func isInvalidSentinel(raw string) bool {
	_, ok := invalidDateSentinels[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}

func timePtr(t time.Time) *time.Time {
	return &t
}
