package ingest

import (
	"fmt"
	"sort"
	"strings"
)

// Logical spreadsheet fields the detector can recognize.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldDateType    = "dateType"
	FieldDate        = "date"
	FieldStartDate   = "startDate"
	FieldEndDate     = "endDate"
	FieldMonth       = "month"
	FieldYear        = "year"
	FieldWeek        = "weekOfMonth"
	FieldTime        = "time"
	FieldSemester    = "semester"
	FieldUserType    = "userType"
)

// fieldAliases maps each logical field to the column headings seen in the
// wild. Matching is case-insensitive and ignores spaces and underscores.
var fieldAliases = map[string][]string{
	FieldTitle:       {"event", "title", "name", "eventname", "eventtitle", "activity"},
	FieldDescription: {"description", "desc", "details", "notes"},
	FieldCategory:    {"category", "type", "eventtype"},
	FieldDateType:    {"datetype", "dateformat", "datekind"},
	FieldDate:        {"date", "dates", "day", "eventdate", "schedule"},
	FieldStartDate:   {"startdate", "start", "from", "begindate"},
	FieldEndDate:     {"enddate", "end", "to", "until"},
	FieldMonth:       {"month"},
	FieldYear:        {"year", "schoolyear"},
	FieldWeek:        {"week", "weekofmonth", "weeknumber"},
	FieldTime:        {"time", "eventtime", "schedtime"},
	FieldSemester:    {"semester", "sem", "term"},
	FieldUserType:    {"usertype", "audience", "for", "target", "userrole"},
}

// FieldMap maps logical fields to column indexes in the detected header.
type FieldMap map[string]int

// Has reports whether the field was present in the header.
func (fm FieldMap) Has(field string) bool {
	_, ok := fm[field]
	return ok
}

// Value returns the trimmed cell for the field, or "" when the field is
// absent or the record is short.
func (fm FieldMap) Value(field string, record []string) string {
	idx, ok := fm[field]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// SchemaError reports a header that could not be matched, naming the
// fields that were recognized so the uploader can fix the sheet.
type SchemaError struct {
	Found []string
}

func (e *SchemaError) Error() string {
	if len(e.Found) == 0 {
		return "insufficient schema: no recognized columns in header row"
	}
	return fmt.Sprintf("insufficient schema: need an Event/Title column plus at least two more recognized fields, only found: %s",
		strings.Join(e.Found, ", "))
}

// DetectSchema matches header cells against the alias sets. Detection
// succeeds only when the title column plus at least two other recognized
// fields are present.
func DetectSchema(header []string) (FieldMap, error) {
	fm := FieldMap{}
	for idx, cell := range header {
		key := canonicalHeader(cell)
		if key == "" {
			continue
		}
		for field, aliases := range fieldAliases {
			if fm.Has(field) {
				continue
			}
			for _, alias := range aliases {
				if key == alias {
					fm[field] = idx
					break
				}
			}
		}
	}

	if !fm.Has(FieldTitle) || len(fm) < 3 {
		found := make([]string, 0, len(fm))
		for field := range fm {
			found = append(found, field)
		}
		sort.Strings(found)
		return nil, &SchemaError{Found: found}
	}
	return fm, nil
}

func canonicalHeader(cell string) string {
	cell = strings.ToLower(strings.TrimSpace(cell))
	cell = strings.ReplaceAll(cell, " ", "")
	cell = strings.ReplaceAll(cell, "_", "")
	cell = strings.ReplaceAll(cell, "-", "")
	return cell
}
