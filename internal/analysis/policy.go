package analysis

import (
	"strconv"
	"strings"
)

// Analysis modes, stored in the analysis_mode setting. Unknown values
// behave as batch.
const (
	ModeRealtime = "realtime"
	ModeBatch    = "batch"
)

// Batch size bounds. The stored setting is clamped on read, so a
// hand-edited value outside the range still yields a usable policy.
const (
	DefaultBatchSize = 10
	MinBatchSize     = 1
	MaxBatchSize     = 100
)

// ClampBatchSize parses a batch_size setting value. Unparseable input
// falls back to the default; out-of-range values are clamped.
func ClampBatchSize(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return DefaultBatchSize
	}
	if n < MinBatchSize {
		return MinBatchSize
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// ShouldAnalyze is the trigger decision evaluated after each capture
// tick that saved at least one screenshot. Realtime fires whenever no
// pass is in flight (best-effort single-flight, not a hard lock).
// Batch fires on exact positive multiples of the batch size.
func ShouldAnalyze(mode string, analyzing bool, savedCount, batchSize int) bool {
	if mode == ModeRealtime {
		return !analyzing
	}
	return savedCount > 0 && savedCount%batchSize == 0
}

// PassLimit is the screenshot limit for a triggered pass: one in
// realtime mode, the batch size otherwise. Zero (unbounded) is
// reserved for end-of-session sweeps and catch-up requests.
func PassLimit(mode string, batchSize int) int {
	if mode == ModeRealtime {
		return 1
	}
	return batchSize
}
