package multipart

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBoundary = "----testboundary1234"

func buildBody(segments ...string) []byte {
	var b strings.Builder
	for _, segment := range segments {
		b.WriteString("--" + testBoundary + "\r\n")
		b.WriteString(segment)
		b.WriteString("\r\n")
	}
	b.WriteString("--" + testBoundary + "--\r\n")
	return []byte(b.String())
}

func TestBoundary(t *testing.T) {
	t.Run("extracts token", func(t *testing.T) {
		boundary, err := Boundary(`multipart/form-data; boundary="abc123"`)
		require.NoError(t, err)
		assert.Equal(t, "abc123", boundary)
	})

	t.Run("rejects non multipart", func(t *testing.T) {
		_, err := Boundary("application/json")
		assert.Error(t, err)
	})

	t.Run("rejects missing boundary", func(t *testing.T) {
		_, err := Boundary("multipart/form-data")
		assert.Error(t, err)
	})
}

func TestParse(t *testing.T) {
	d := NewDecoder(0)

	t.Run("fields and file", func(t *testing.T) {
		body := buildBody(
			"Content-Disposition: form-data; name=\"title\"\r\n\r\nEnrollment Day",
			"Content-Disposition: form-data; name=\"file\"; filename=\"sched.csv\"\r\nContent-Type: text/csv\r\n\r\nTitle,Date\nA,2025-06-02",
		)

		parts, err := d.Parse(body, testBoundary)
		require.NoError(t, err)
		require.Len(t, parts, 2)

		assert.Equal(t, "title", parts[0].Name)
		assert.Equal(t, "Enrollment Day", string(parts[0].Data))
		assert.Equal(t, "application/octet-stream", parts[0].ContentType)

		assert.Equal(t, "file", parts[1].Name)
		assert.Equal(t, "sched.csv", parts[1].Filename)
		assert.Equal(t, "text/csv", parts[1].ContentType)
		assert.Equal(t, "Title,Date\nA,2025-06-02", string(parts[1].Data))
	})

	t.Run("bare lf body", func(t *testing.T) {
		body := []byte("--" + testBoundary + "\nContent-Disposition: form-data; name=\"title\"\n\nvalue\n--" + testBoundary + "--\n")
		parts, err := d.Parse(body, testBoundary)
		require.NoError(t, err)
		require.Len(t, parts, 1)
		assert.Equal(t, "value", string(parts[0].Data))
	})

	t.Run("nameless part dropped", func(t *testing.T) {
		body := buildBody(
			"Content-Type: text/plain\r\n\r\norphan",
			"Content-Disposition: form-data; name=\"kept\"\r\n\r\nyes",
		)
		parts, err := d.Parse(body, testBoundary)
		require.NoError(t, err)
		require.Len(t, parts, 1)
		assert.Equal(t, "kept", parts[0].Name)
	})

	t.Run("missing close marker", func(t *testing.T) {
		body := []byte("--" + testBoundary + "\r\nContent-Disposition: form-data; name=\"title\"\r\n\r\ntruncated upload")
		_, err := d.Parse(body, testBoundary)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "close marker")
	})

	t.Run("boundary not present", func(t *testing.T) {
		_, err := d.Parse([]byte("no markers here"), testBoundary)
		assert.Error(t, err)
	})

	t.Run("empty boundary", func(t *testing.T) {
		_, err := d.Parse([]byte("data"), "")
		assert.Error(t, err)
	})
}

func TestParseSizeLimit(t *testing.T) {
	d := NewDecoder(16)
	_, err := d.Parse(make([]byte, 17), testBoundary)
	assert.ErrorIs(t, err, ErrTooLarge)

	// At the cap exactly, parsing proceeds.
	_, err = d.Parse(make([]byte, 16), testBoundary)
	assert.NotErrorIs(t, err, ErrTooLarge)
}
