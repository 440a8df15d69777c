package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"Title", "Date"},
		Rows: []map[string]string{
			{"Title": "Enrollment Day", "Date": "2025-06-02"},
			{"Title": "Foundation Day", "Date": "2025-08-11"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	data, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, "Title,Date\n")
	assert.Contains(t, out, "Enrollment Day,2025-06-02\n")
	assert.Contains(t, out, "Foundation Day,2025-08-11\n")
}

func TestCSVExporterMissingColumnRendersEmpty(t *testing.T) {
	data, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Title", "Missing"},
		Rows:    []map[string]string{{"Title": "X"}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), "X,\n")
}

func TestCSVExporterNoHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	data, err := NewPDFExporter().Render(sampleDataset(), "School Calendar")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")), "output should be a PDF document")
}

func TestPDFExporterNoHeaders(t *testing.T) {
	_, err := NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}
