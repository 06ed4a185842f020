package media

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "My Video", "My Video"},
		{"invalid chars", `Weird/Name:*?`, "WeirdName"},
		{"all invalid chars", `<>:"/\|?*`, "untitled"},
		{"empty", "", "untitled"},
		{"trims dots and spaces", "  title... ", "title"},
		{"keeps unicode", "ビデオ", "ビデオ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	long := strings.Repeat("a", 500)
	assert.Len(t, SanitizeFilename(long), 200)
}

func TestSanitizeFilenameStripsAllReserved(t *testing.T) {
	out := SanitizeFilename(`Weird/Name:*?`)
	assert.NotContains(t, out, "/")
	assert.NotContains(t, out, ":")
	assert.NotContains(t, out, "*")
	assert.NotContains(t, out, "?")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "Unknown", FormatSize(0))
	assert.Equal(t, "512.0 B", FormatSize(512))
	assert.Equal(t, "1.0 KB", FormatSize(1024))
	assert.Equal(t, "1.5 MB", FormatSize(1024*1024*3/2))
	assert.Equal(t, "2.0 GB", FormatSize(2*1024*1024*1024))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "Unknown", FormatDuration(0))
	assert.Equal(t, "0:45", FormatDuration(45))
	assert.Equal(t, "3:05", FormatDuration(185))
	assert.Equal(t, "1:01:01", FormatDuration(3661))
}
