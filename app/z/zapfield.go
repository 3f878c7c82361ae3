// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package z provides an API for structured logging fields by wrapping zap.Field.
// It also supports internal structured errors.
package z

import (
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// Field wraps one or more zap fields.
type Field func(add func(zap.Field))

// Fields returns the fields of an internal structured error.
func Fields(err error) []Field {
	type structErr interface {
		Fields() []Field
	}

	serr, ok := err.(structErr) //nolint:errorlint
	if !ok {
		return []Field{}
	}

	return serr.Fields()
}

// Err returns a wrapped zap error field. It will include an additional stack trace and fields
// if the error is an internal structured error.
// NOTE: This is only used when logging errors on other levels than Error since it has built-in support for errors.
func Err(err error) Field {
	type structErr interface {
		Fields() []Field
		Stack() zap.Field
	}

	// Using cast instead of errors.As since no other wrapping library
	// is used and this avoids exporting the structured error type.
	serr, ok := err.(structErr) //nolint:errorlint
	if ok {
		return func(add func(zap.Field)) {
			add(zap.Error(err))
			add(serr.Stack())
			for _, field := range serr.Fields() {
				field(add)
			}
		}
	}

	return func(add func(zap.Field)) {
		add(zap.Error(err))
	}
}

// Str returns a wrapped zap string field.
func Str(key, val string) Field {
	return func(add func(zap.Field)) {
		add(zap.String(key, val))
	}
}

// Bool returns a wrapped zap boolean field.
func Bool(key string, val bool) Field {
	return func(add func(zap.Field)) {
		add(zap.Bool(key, val))
	}
}

// Int returns a wrapped zap int field.
func Int(key string, val int) Field {
	return func(add func(zap.Field)) {
		add(zap.Int(key, val))
	}
}

// U64 returns a wrapped zap uint64 field.
func U64(key string, val uint64) Field {
	return func(add func(zap.Field)) {
		add(zap.Uint64(key, val))
	}
}

// U32 returns a wrapped zap uint32 field.
func U32(key string, val uint32) Field {
	return func(add func(zap.Field)) {
		add(zap.Uint32(key, val))
	}
}

// U8 returns a wrapped zap uint8 field.
func U8(key string, val uint8) Field {
	return func(add func(zap.Field)) {
		add(zap.Uint8(key, val))
	}
}

// Hex returns a wrapped zap string field with the hex encoding of the provided bytes.
func Hex(key string, val []byte) Field {
	return func(add func(zap.Field)) {
		add(zap.String(key, hex.EncodeToString(val)))
	}
}

// Duration returns a wrapped zap duration field.
func Duration(key string, val time.Duration) Field {
	return func(add func(zap.Field)) {
		add(zap.Duration(key, val))
	}
}

// Any returns a wrapped zap any field. Note this will use reflection, so only use for debugging or rare logs.
func Any(key string, val any) Field {
	return func(add func(zap.Field)) {
		add(zap.Any(key, val))
	}
}
