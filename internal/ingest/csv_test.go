package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitRows(t *testing.T) {
	t.Run("crlf and blanks", func(t *testing.T) {
		rows := SplitRows("Title,Date\r\nFoundation Day,2025-08-11\r\n\r\n  \nEnrollment,2025-06-02\n")
		assert.Equal(t, []string{
			"Title,Date",
			"Foundation Day,2025-08-11",
			"Enrollment,2025-06-02",
		}, rows)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, SplitRows(""))
	})
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			name: "plain fields trimmed",
			line: "Foundation Day , 2025-08-11,All Day",
			want: []string{"Foundation Day", "2025-08-11", "All Day"},
		},
		{
			name: "quoted comma is not a delimiter",
			line: `"Prelim Exams","October 14, 15 and 16",Academic`,
			want: []string{"Prelim Exams", "October 14, 15 and 16", "Academic"},
		},
		{
			name: "doubled quote is a literal quote",
			line: `"The ""Big"" Event",2025-06-02`,
			want: []string{`The "Big" Event`, "2025-06-02"},
		},
		{
			name: "trailing empty field",
			line: "Title,2025-06-02,",
			want: []string{"Title", "2025-06-02", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitLine(tt.line))
		})
	}
}
