package authlog

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// secretKeys are attribute keys whose values must never reach a log sink in
// full. Matching is case-insensitive and substring-based, so "id_token" and
// "accessToken" are both caught.
var secretKeys = []string{"token", "verifier", "secret", "code_challenge", "password"}

// redactAttr replaces secret-bearing string attributes with a length-only
// placeholder.
func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	key := strings.ToLower(a.Key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			v := a.Value.String()
			if v == "" {
				return a
			}
			return slog.String(a.Key, redactedValue(v))
		}
	}
	return a
}

func redactedValue(v string) string {
	if len(v) <= 8 {
		return "[redacted]"
	}
	return v[:4] + "...[redacted " + strconv.Itoa(len(v)) + " chars]"
}

// Interactive returns a logger with the human-friendly handler writing to
// stderr at the given level.
func Interactive(level slog.Level) *slog.Logger {
	return slog.New(NewHumanHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Machine returns a JSON logger writing to w at the given level, with the
// same secret redaction applied.
func Machine(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			return redactAttr(a)
		},
	}))
}
