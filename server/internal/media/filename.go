package media

import (
	"fmt"
	"strings"
)

const maxFilenameLen = 200

// SanitizeFilename strips characters that are invalid in filenames, trims
// leading/trailing spaces and dots and caps the length. An empty result
// becomes "untitled".
func SanitizeFilename(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			return -1
		}
		return r
	}, name)

	sanitized = strings.Trim(sanitized, " .")

	if len(sanitized) > maxFilenameLen {
		sanitized = sanitized[:maxFilenameLen]
	}

	if sanitized == "" {
		return "untitled"
	}
	return sanitized
}

// FormatSize renders a byte count as a human readable string.
func FormatSize(size int64) string {
	if size <= 0 {
		return "Unknown"
	}

	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f TB", value)
}

// FormatDuration renders seconds as H:MM:SS, or M:SS below one hour.
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "Unknown"
	}

	var (
		hours   = seconds / 3600
		minutes = (seconds % 3600) / 60
		secs    = seconds % 60
	)

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
