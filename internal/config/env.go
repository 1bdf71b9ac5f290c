package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Lenient readers: a malformed value falls back to the default. Used for
// tuning knobs where a typo should not stop the process.

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v, ok := parseBool(os.Getenv(k))
	if !ok {
		return d
	}
	return v
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

func parseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// loader reads settings that must be right. Problems are collected so a
// misconfigured deployment reports everything at once.
type loader struct {
	errs []error
}

func (l *loader) required(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.errs = append(l.errs, fmt.Errorf("missing required env var: %s", key))
		return ""
	}
	return v
}

func (l *loader) duration(key string, d time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil || dur <= 0 {
		l.errs = append(l.errs, fmt.Errorf("invalid duration for %s: %q", key, v))
		return d
	}
	return dur
}

func (l *loader) integer(key string, d int) int {
	v := os.Getenv(key)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid int for %s: %q", key, v))
		return d
	}
	return n
}

func (l *loader) boolean(key string, d bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return d
	}
	v, ok := parseBool(raw)
	if !ok {
		l.errs = append(l.errs, fmt.Errorf("invalid bool for %s: %q", key, raw))
		return d
	}
	return v
}

func (l *loader) fail(err error) {
	l.errs = append(l.errs, err)
}

func (l *loader) err() error {
	return errors.Join(l.errs...)
}
