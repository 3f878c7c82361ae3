// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package errors_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threshnet/attestor/app/errors"
	"github.com/threshnet/attestor/app/z"
)

func TestWrapSentinel(t *testing.T) {
	sentinel := errors.NewSentinel("not found")

	err := errors.Wrap(sentinel, "lookup failed", z.Str("key", "foo"))
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, "lookup failed: not found", err.Error())

	// Wrapping again preserves the sentinel.
	err = errors.Wrap(err, "query failed")
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, "query failed: lookup failed: not found", err.Error())
}

func TestFields(t *testing.T) {
	err := errors.New("boom", z.Str("key", "foo"))
	require.Len(t, z.Fields(err), 1)

	// Wrapping accumulates fields.
	err = errors.Wrap(err, "wrapped", z.Int("count", 1))
	require.Len(t, z.Fields(err), 2)
}

func TestWrapStdlib(t *testing.T) {
	cause := errors.New("cause")

	err := errors.Wrap(cause, "context")
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, errors.Unwrap(err), cause)
}
