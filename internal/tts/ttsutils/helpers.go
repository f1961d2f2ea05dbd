// Package ttsutils provides file and path utility functions for the bridge.
//
// This package focuses on platform-agnostic ways to handle the scratch
// directory, format data for log lines, and sanitize file name parts.
package ttsutils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Directory and path constants.
const (
	defaultDirPermissions = 0o750
	zeroID                = "0"
	dot                   = "."
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Size formatting constants.
const (
	formatGB    = "%.1f GB"
	formatMB    = "%.1f MB"
	formatKB    = "%.1f KB"
	formatBytes = "%d B"
)

// CJK Unified Ideographs block.
const (
	cjkFirst = '一'
	cjkLast  = '鿿'
)

// Error message and format string constants.
const (
	errFmtFailedToCreateDir           = "failed to create directory %s: %w"
	errFmtCouldNotResolveAbsolutePath = "could not resolve absolute path for %q: %w"
)

// EnsureDir ensures a directory exists at the given path, creating it if it
// doesn't, and returns its absolute form.
func EnsureDir(path string) (string, error) {
	absPath, absErr := filepath.Abs(path)
	if absErr != nil {
		return "", fmt.Errorf(errFmtCouldNotResolveAbsolutePath, path, absErr)
	}

	_, statErr := os.Stat(absPath)
	if os.IsNotExist(statErr) {
		// MkdirAll is used to create parent directories as needed.
		mkdirErr := os.MkdirAll(absPath, defaultDirPermissions)
		if mkdirErr != nil {
			return "", fmt.Errorf(
				errFmtFailedToCreateDir,
				absPath,
				mkdirErr,
			)
		}
	}

	return absPath, nil
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsCJKIdeograph reports whether r lies in the CJK Unified Ideographs block.
func IsCJKIdeograph(r rune) bool {
	return r >= cjkFirst && r <= cjkLast
}

// IsASCIIAlnum reports whether r is an ASCII letter or digit.
func IsASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// SanitizeID keeps ASCII letters and digits, CJK ideographs and underscores.
// An identifier with nothing left becomes "0".
func SanitizeID(id string) string {
	cleaned := strings.Map(func(r rune) rune {
		if IsASCIIAlnum(r) || IsCJKIdeograph(r) || r == '_' {
			return r
		}

		return -1
	}, id)

	if cleaned == "" {
		return zeroID
	}

	return cleaned
}

// SanitizeExtension reduces an audio format to ASCII letters and digits,
// falling back to def when nothing is left.
func SanitizeExtension(format, def string) string {
	cleaned := strings.Map(func(r rune) rune {
		if IsASCIIAlnum(r) {
			return unicode.ToLower(r)
		}

		return -1
	}, strings.TrimPrefix(format, dot))

	if cleaned == "" {
		return def
	}

	return cleaned
}
