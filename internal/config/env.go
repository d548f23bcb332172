package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Env reads prefixed keys through a LookupFunc. Missing keys leave the
// destination untouched; the first malformed value is kept in Err and later
// reads become no-ops.
type Env struct {
	lookup LookupFunc
	prefix string
	err    error
}

func NewEnv(lookup LookupFunc, prefix string) *Env {
	return &Env{lookup: lookup, prefix: prefix}
}

func (e *Env) Err() error {
	return e.err
}

// Name returns the full key name for key.
func (e *Env) Name(key string) string {
	return e.prefix + key
}

func (e *Env) raw(key string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	value, ok := e.lookup(e.Name(key))
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (e *Env) fail(key string, cause error) {
	e.err = fmt.Errorf("invalid %s: %w", e.Name(key), cause)
}

func (e *Env) String(key string, dst *string) {
	if value, ok := e.raw(key); ok {
		*dst = value
	}
}

func (e *Env) Int(key string, dst *int) {
	value, ok := e.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = n
}

func (e *Env) Bool(key string, dst *bool) {
	value, ok := e.raw(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = b
}

func (e *Env) Duration(key string, dst *time.Duration) {
	value, ok := e.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}

// Level accepts debug, info, warn (or warning) and error in any case.
func (e *Env) Level(key string, dst *slog.Level) {
	value, ok := e.raw(key)
	if !ok {
		return
	}
	switch strings.ToLower(value) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		e.fail(key, fmt.Errorf("unknown level %q", value))
	}
}
