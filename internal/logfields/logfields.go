package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyRunType    = "run_type"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyRelay      = "relay"
	KeyKind       = "kind"
	KeyDTag       = "d_tag"
	KeyEventID    = "event_id"
	KeyAttempt    = "attempt"
	KeyCount      = "count"
	KeyPath       = "path"
	KeyLevel      = "level"
	KeySchedule   = "schedule"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func RunType(t string) slog.Attr      { return slog.String(KeyRunType, t) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Relay(url string) slog.Attr      { return slog.String(KeyRelay, url) }
func Kind(k int) slog.Attr            { return slog.Int(KeyKind, k) }
func DTag(d string) slog.Attr         { return slog.String(KeyDTag, d) }
func EventID(id string) slog.Attr     { return slog.String(KeyEventID, id) }
func Attempt(n int) slog.Attr         { return slog.Int(KeyAttempt, n) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Level(l int) slog.Attr           { return slog.Int(KeyLevel, l) }
func Schedule(s string) slog.Attr     { return slog.String(KeySchedule, s) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
