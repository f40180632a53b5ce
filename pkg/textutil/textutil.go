// Package textutil provides byte-level text utilities used by the discovery
// and rules engines: binary detection, line counting, and line splitting that
// survives a lossless round trip.
package textutil

import (
	"bytes"
	"strings"
)

// BinarySniffLength is the maximum number of bytes scanned for null-byte
// detection. Matches the heuristic used by Git and most editors.
const BinarySniffLength = 8000

// IsBinary returns true if data contains a null byte within the first
// BinarySniffLength bytes. Empty data is not binary.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sniff := data
	if len(sniff) > BinarySniffLength {
		sniff = sniff[:BinarySniffLength]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// CountLines returns the number of newline-delimited lines in data.
// A non-empty buffer without a trailing newline counts the last partial line.
// Returns 0 for empty data.
func CountLines(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	lines := bytes.Count(data, []byte{'\n'})

	if data[len(data)-1] != '\n' {
		lines++
	}

	return lines
}

// SplitLines splits content into lines without their newline terminators and
// reports whether content ended with a newline. JoinLines with the same flag
// reproduces the input byte for byte, which lets line-oriented rewrites prove
// they only touched the lines they meant to.
func SplitLines(content string) (lines []string, trailingNewline bool) {
	if content == "" {
		return nil, false
	}

	trailingNewline = strings.HasSuffix(content, "\n")

	if trailingNewline {
		content = content[:len(content)-1]
	}

	return strings.Split(content, "\n"), trailingNewline
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string, trailingNewline bool) string {
	if len(lines) == 0 {
		return ""
	}

	joined := strings.Join(lines, "\n")

	if trailingNewline {
		joined += "\n"
	}

	return joined
}
