package pump

import (
	"bytes"
	"strings"
)

// DetectStop inspects the two poll replies for evidence that the drive
// has finished a metered run. An S, X or H in the status text or an
// ACK on either reply marks a stop. So does a zero digit anywhere in
// the revolutions readout, which means a reading like 10.5 can trip it
// early; dispense monitors back this up with a wall-clock ceiling.
func DetectStop(status, revsRemaining []byte) (byStatus, byCounter bool) {
	byStatus = strings.ContainsAny(string(status), "SXH") ||
		bytes.IndexByte(status, ack) >= 0

	revs := string(revsRemaining)
	byCounter = strings.Contains(revs, "0") ||
		bytes.IndexByte(revsRemaining, ack) >= 0
	return byStatus, byCounter
}
