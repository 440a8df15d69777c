package ingest

import "strings"

// SplitRows breaks raw spreadsheet text into rows, tolerating CRLF line
// endings and dropping blank lines.
func SplitRows(data string) []string {
	lines := strings.Split(data, "\n")
	rows := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, line)
	}
	return rows
}

// SplitLine splits one comma-delimited row. Commas inside double-quoted
// fields are not delimiters and a doubled quote inside a quoted field is a
// literal quote, matching what spreadsheet exports actually produce.
func SplitLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteByte(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}
