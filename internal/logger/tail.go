package logger

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

const tailChunk = 4096

// ReadTail returns the last n lines of the file at path, without a trailing
// newline. It reads backwards so large logs are not scanned in full.
func ReadTail(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if n <= 0 {
		return "", nil
	}

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat log file: %w", err)
	}

	// One newline more than n guarantees the oldest wanted line is whole.
	var tail []byte
	offset := info.Size()
	for offset > 0 && bytes.Count(tail, []byte{'\n'}) <= n {
		step := min(int64(tailChunk), offset)
		offset -= step
		chunk := make([]byte, step)
		if _, err := f.ReadAt(chunk, offset); err != nil {
			return "", fmt.Errorf("read log file: %w", err)
		}
		tail = append(chunk, tail...)
	}

	lines := strings.Split(strings.TrimRight(string(tail), "\r\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return strings.Join(lines, "\n"), nil
}
