package helper

import (
	"fmt"
	"regexp"
	"strings"

	uuid "github.com/satori/go.uuid"
)

var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// NormalizeFilename trims surrounding whitespace and checks the filename grammar.
func NormalizeFilename(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if !filenamePattern.MatchString(name) {
		return "", ErrInvalidFilename
	}
	return name, nil
}

// ComputeNumberOfChunks rounds size/chunkSize up.
func ComputeNumberOfChunks(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	n := size / chunkSize
	if size%chunkSize != 0 {
		n++
	}
	return int(n)
}

// NewID returns a random id used to correlate log lines of one run or cycle.
func NewID() string {
	return uuid.NewV4().String()
}

func TruncateOutput(bytestream []byte) string {
	if len(bytestream) <= 10 {
		return string(bytestream)
	}
	return fmt.Sprintf("%s... and %d more characters", string(bytestream[:10]), len(bytestream)-10)
}
