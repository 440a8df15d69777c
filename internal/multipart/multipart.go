// Package multipart decodes buffered multipart/form-data bodies into named,
// typed parts. It is deliberately buffer-based: the upload path caps body
// size well below anything that would need streaming.
package multipart

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
)

// DefaultMaxBodyBytes caps bodies at 50 MiB unless configured otherwise.
const DefaultMaxBodyBytes int64 = 50 * 1024 * 1024

const defaultContentType = "application/octet-stream"

// ErrTooLarge is returned before any parsing when the body exceeds the cap.
var ErrTooLarge = fmt.Errorf("multipart: body exceeds size limit")

// Part is one decoded body part.
type Part struct {
	Name        string
	Filename    string
	ContentType string
	Data        []byte
}

// Decoder parses multipart bodies subject to a size cap.
type Decoder struct {
	maxBytes int64
}

// NewDecoder constructs a decoder. A non-positive cap falls back to the default.
func NewDecoder(maxBytes int64) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return &Decoder{maxBytes: maxBytes}
}

// MaxBytes is the configured body size cap.
func (d *Decoder) MaxBytes() int64 {
	return d.maxBytes
}

// Boundary extracts the boundary token from a Content-Type header value.
func Boundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("multipart: parse content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("multipart: unexpected media type %q", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", fmt.Errorf("multipart: missing boundary parameter")
	}
	return boundary, nil
}

// Parse scans body for boundary-delimited segments and returns the named
// parts in order. Parts without a form name are dropped.
func (d *Decoder) Parse(body []byte, boundary string) ([]Part, error) {
	if int64(len(body)) > d.maxBytes {
		return nil, ErrTooLarge
	}
	if boundary == "" {
		return nil, fmt.Errorf("multipart: empty boundary")
	}

	delimiter := []byte("--" + boundary)
	segments := bytes.Split(body, delimiter)
	if len(segments) < 2 {
		return nil, fmt.Errorf("multipart: boundary %q not found in body", boundary)
	}

	// segments[0] is the preamble; the final segment must be the "--"
	// close marker plus epilogue. A truncated body would otherwise lose
	// its last part without any signal.
	if !bytes.HasPrefix(segments[len(segments)-1], []byte("--")) {
		return nil, fmt.Errorf("multipart: missing close marker")
	}

	var parts []Part
	for _, segment := range segments[1 : len(segments)-1] {
		part, ok := parseSegment(segment)
		if !ok {
			continue
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func parseSegment(segment []byte) (Part, bool) {
	segment = bytes.TrimPrefix(segment, []byte("\r\n"))
	segment = bytes.TrimPrefix(segment, []byte("\n"))

	headerBlock, data, found := splitHeaderBody(segment)
	if !found {
		return Part{}, false
	}
	data = bytes.TrimSuffix(data, []byte("\r\n"))
	data = bytes.TrimSuffix(data, []byte("\n"))

	part := Part{ContentType: defaultContentType, Data: data}
	for _, line := range strings.Split(string(headerBlock), "\n") {
		line = strings.TrimRight(line, "\r")
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "content-disposition":
			_, params, err := mime.ParseMediaType(value)
			if err != nil {
				continue
			}
			part.Name = params["name"]
			part.Filename = params["filename"]
		case "content-type":
			if value != "" {
				part.ContentType = value
			}
		}
	}

	if part.Name == "" {
		return Part{}, false
	}
	return part, true
}

// splitHeaderBody cuts a segment at the first blank line, tolerating both
// CRLF and bare LF line endings.
func splitHeaderBody(segment []byte) (header, body []byte, found bool) {
	if idx := bytes.Index(segment, []byte("\r\n\r\n")); idx >= 0 {
		return segment[:idx], segment[idx+4:], true
	}
	if idx := bytes.Index(segment, []byte("\n\n")); idx >= 0 {
		return segment[:idx], segment[idx+2:], true
	}
	return nil, nil, false
}
