package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyHash       = "hash"
	KeyStatus     = "status"
	KeyState      = "state"
	KeyActivity   = "activity"
	KeyDurationMS = "duration_ms"
	KeyErrors     = "errors"
	KeyWarnings   = "warnings"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyHook       = "hook"
	KeyError      = "error"
)

func BuildID(id string) slog.Attr    { return slog.String(KeyBuildID, id) }
func Hash(h string) slog.Attr        { return slog.String(KeyHash, h) }
func Status(s string) slog.Attr      { return slog.String(KeyStatus, s) }
func State(s string) slog.Attr       { return slog.String(KeyState, s) }
func Activity(id string) slog.Attr   { return slog.String(KeyActivity, id) }
func Errors(n int) slog.Attr         { return slog.Int(KeyErrors, n) }
func Warnings(n int) slog.Attr       { return slog.Int(KeyWarnings, n) }
func Path(p string) slog.Attr        { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr         { return slog.String(KeyURL, u) }
func Hook(name string) slog.Attr     { return slog.String(KeyHook, name) }
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d.Nanoseconds())/1e6)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
