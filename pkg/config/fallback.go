package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Loaded is a value read from the environment together with the reason,
// if any, it was replaced by its default.
type Loaded[T any] struct {
	Value T
	// Warning is set when the environment value was rejected.
	Warning string
}

// FallbackApplied reports whether the default replaced a rejected value.
func (l Loaded[T]) FallbackApplied() bool {
	return l.Warning != ""
}

// LoadWithFallback reads key, parses it and validates it. An unset key yields
// def silently; a value that fails parse or validate yields def with a warning.
// It never fails, so a bad tunable can't keep a worker from starting.
func LoadWithFallback[T any](key string, def T, parse func(string) (T, error), validate func(T) error) Loaded[T] {
	raw := os.Getenv(key)
	if raw == "" {
		return Loaded[T]{Value: def}
	}

	v, err := parse(raw)
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err != nil {
		return Loaded[T]{
			Value:   def,
			Warning: fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'", key, raw, err, def),
		}
	}
	return Loaded[T]{Value: v}
}

// LoadString is LoadWithFallback for plain strings.
func LoadString(key, def string, validate func(string) error) Loaded[string] {
	return LoadWithFallback(key, def, func(s string) (string, error) { return s, nil }, validate)
}

// LoadInt is LoadWithFallback for base-10 integers.
func LoadInt(key string, def int, validate func(int) error) Loaded[int] {
	return LoadWithFallback(key, def, strconv.Atoi, validate)
}

// LoadDuration is LoadWithFallback for Go duration strings such as "90s" or "1h30m".
func LoadDuration(key string, def time.Duration, validate func(time.Duration) error) Loaded[time.Duration] {
	return LoadWithFallback(key, def, time.ParseDuration, validate)
}
