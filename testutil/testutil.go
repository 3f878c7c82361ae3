// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package testutil provides test utilities and mocks of the external collaborators.
package testutil

import (
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// RandomBytes returns a buffer of l random bytes.
func RandomBytes(t *testing.T, l int) []byte {
	t.Helper()

	resp := make([]byte, l)
	_, err := rand.Read(resp)
	require.NoError(t, err)

	return resp
}

// RandomOutput returns a random job output payload.
func RandomOutput(t *testing.T) []byte {
	t.Helper()

	return RandomBytes(t, 32)
}

// RandomAddress returns a random operator address.
func RandomAddress(t *testing.T) common.Address {
	t.Helper()

	return common.BytesToAddress(RandomBytes(t, 20))
}
