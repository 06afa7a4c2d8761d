package balance

import (
	"math"
	"strconv"
	"strings"
)

// ParseWeight extracts the numeric field from a raw scale report.
// MT-SICS replies look like "S S      1.2345 g"; every digit, dot and
// minus sign is kept, everything else is discarded. Values round to
// the balance's four-decimal resolution.
func ParseWeight(line string) (float64, bool) {
	var sb strings.Builder
	for _, c := range line {
		if c >= '0' && c <= '9' || c == '.' || c == '-' {
			sb.WriteRune(c)
		}
	}
	if sb.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(sb.String(), 64)
	if err != nil {
		return 0, false
	}
	return math.Round(v*1e4) / 1e4, true
}

// splitLines splits off the complete CR/LF-terminated lines in buf,
// returning the unterminated remainder. Blank lines are dropped.
func splitLines(buf []byte) (rest []byte, lines []string) {
	start := 0
	for i, c := range buf {
		if c != '\n' && c != '\r' {
			continue
		}
		if line := strings.TrimSpace(string(buf[start:i])); line != "" {
			lines = append(lines, line)
		}
		start = i + 1
	}
	return buf[start:], lines
}
