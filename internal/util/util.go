package util

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var hexIDPattern = regexp.MustCompile(`[0-9a-fA-F]{32}`)

func GetIDFromString(str *string) string {
	hasher := sha1.New()
	hasher.Write([]byte(*str))

	return hex.EncodeToString(hasher.Sum(nil))
}

func GetIDFromBytes(data []byte) string {
	hasher := sha1.New()
	hasher.Write(data)

	return hex.EncodeToString(hasher.Sum(nil))
}

// NormalizeRecordID brings a remote record id to its canonical dashed UUID
// form. Both dashed and compact 32-hex forms are accepted.
func NormalizeRecordID(id string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", fmt.Errorf("cannot parse record id %q: %w", id, err)
	}

	return u.String(), nil
}

// CompactRecordID returns the 32-hex form of a canonical record id, the form
// embedded into output filenames.
func CompactRecordID(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

// RecordIDFromFileName recovers a canonical record id from a 32-hex-digit run
// embedded in a filename. Returns false if no such run is present.
func RecordIDFromFileName(name string) (string, bool) {
	m := hexIDPattern.FindString(name)
	if m == "" {
		return "", false
	}

	u, err := uuid.Parse(m)
	if err != nil {
		return "", false
	}

	return u.String(), true
}
