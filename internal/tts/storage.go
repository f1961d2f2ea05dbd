package tts

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-bridge/internal/tts/text"
	"github.com/book-expert/tts-bridge/internal/tts/ttsutils"
)

const (
	filePermissions = 0o600

	nameSeparator = "_"
	extSeparator  = "."

	defaultExtension = "wav"
)

// Log messages for the purge pass.
const (
	logPurgeStarted      = "Starting scratch directory purge: %s"
	logPurgeFileFailed   = "Failed to delete scratch file %s: %v"
	logPurgeDone         = "Purge finished, deleted %d temporary files (%d failed)."
	logPurgeNothing      = "No temporary files to purge."
	errFmtReadScratchDir = "failed to read scratch directory %s: %w"
)

// AudioStore persists synthesized audio and purges it later. The scratch
// directory sits behind this interface so tests can supply their own.
type AudioStore interface {
	Save(name string, data []byte) (string, error)
	Purge() (PurgeResult, error)
	Dir() string
}

// PurgeResult counts what one purge pass did.
type PurgeResult struct {
	Deleted int
	Failed  int
}

// DirStore keeps audio artifacts as flat files in one scratch directory.
type DirStore struct {
	dir string
	log *logger.Logger
}

// NewDirStore resolves dir, creating it if absent.
func NewDirStore(dir string, log *logger.Logger) (*DirStore, error) {
	absDir, err := ttsutils.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare scratch directory: %w", err)
	}

	return &DirStore{dir: absDir, log: log}, nil
}

// Dir returns the absolute scratch directory.
func (s *DirStore) Dir() string {
	return s.dir
}

// Save writes data to name inside the scratch directory, overwriting any
// existing file, and returns the absolute path.
func (s *DirStore) Save(name string, data []byte) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(name))

	err := os.WriteFile(path, data, filePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	return path, nil
}

// Purge deletes every entry directly inside the scratch directory that is,
// or links to, a regular file. Subdirectories and dangling links are left
// alone, and a failed deletion does not stop the pass.
func (s *DirStore) Purge() (PurgeResult, error) {
	var result PurgeResult

	s.log.Info(logPurgeStarted, s.dir)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return result, fmt.Errorf(errFmtReadScratchDir, s.dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(s.dir, entry.Name())

		// Stat follows symlinks: a link to a file is unlinked, the target kept.
		info, statErr := os.Stat(path)
		if statErr != nil || !info.Mode().IsRegular() {
			continue
		}

		removeErr := os.Remove(path)
		if removeErr != nil {
			s.log.Error(logPurgeFileFailed, entry.Name(), removeErr)

			result.Failed++

			continue
		}

		result.Deleted++
	}

	if result.Deleted > 0 || result.Failed > 0 {
		s.log.Info(logPurgeDone, result.Deleted, result.Failed)
	} else {
		s.log.Info(logPurgeNothing)
	}

	return result, nil
}

// GenerateFileName derives "{scope}_{sender}_{prefix}.{format}" from the
// conversation identity and the text to be spoken. Distinct texts sharing a
// 30-rune prefix map to the same name.
func GenerateFileName(scopeID, senderID, speech, format string) string {
	return ttsutils.SanitizeID(scopeID) +
		nameSeparator + ttsutils.SanitizeID(senderID) +
		nameSeparator + text.FileNamePrefix(speech) +
		extSeparator + ttsutils.SanitizeExtension(format, defaultExtension)
}
