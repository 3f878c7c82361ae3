// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package tbls_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threshnet/attestor/tbls"
)

func TestSignVerify(t *testing.T) {
	secret, err := tbls.GenerateSecretKey()
	require.NoError(t, err)

	public, err := tbls.SecretToPublicKey(secret)
	require.NoError(t, err)

	msg := []byte("attested job output digest")

	sig, err := tbls.Sign(secret, msg)
	require.NoError(t, err)

	require.NoError(t, tbls.Verify(public, msg, sig))
	require.Error(t, tbls.Verify(public, []byte("other message"), sig))

	otherSecret, err := tbls.GenerateSecretKey()
	require.NoError(t, err)

	otherPublic, err := tbls.SecretToPublicKey(otherSecret)
	require.NoError(t, err)

	require.Error(t, tbls.Verify(otherPublic, msg, sig))
}

func TestAggregate(t *testing.T) {
	msg := []byte("attested job output digest")

	var (
		sigs    []tbls.Signature
		publics []tbls.PublicKey
	)

	for range 3 {
		secret, err := tbls.GenerateSecretKey()
		require.NoError(t, err)

		public, err := tbls.SecretToPublicKey(secret)
		require.NoError(t, err)

		sig, err := tbls.Sign(secret, msg)
		require.NoError(t, err)

		sigs = append(sigs, sig)
		publics = append(publics, public)
	}

	aggSig, err := tbls.Aggregate(sigs)
	require.NoError(t, err)

	aggPublic, err := tbls.AggregatePublicKeys(publics)
	require.NoError(t, err)

	// The aggregate signature verifies against the aggregate public key.
	require.NoError(t, tbls.Verify(aggPublic, msg, aggSig))

	// A partial aggregate does not.
	partial, err := tbls.AggregatePublicKeys(publics[:2])
	require.NoError(t, err)
	require.Error(t, tbls.Verify(partial, msg, aggSig))
}

func TestParseRoundTrip(t *testing.T) {
	secret, err := tbls.GenerateSecretKey()
	require.NoError(t, err)

	public, err := tbls.SecretToPublicKey(secret)
	require.NoError(t, err)

	sig, err := tbls.Sign(secret, []byte("payload"))
	require.NoError(t, err)

	parsedSig, err := tbls.ParseSignature(sig[:])
	require.NoError(t, err)
	require.Equal(t, sig, parsedSig)

	parsedPub, err := tbls.ParsePublicKey(public[:])
	require.NoError(t, err)
	require.Equal(t, public, parsedPub)
}

func TestParseMalformed(t *testing.T) {
	_, err := tbls.ParseSignature(nil)
	require.Error(t, err)

	_, err = tbls.ParseSignature(make([]byte, 95))
	require.Error(t, err)

	garbage := make([]byte, 96)
	for i := range garbage {
		garbage[i] = 0xff
	}

	_, err = tbls.ParseSignature(garbage)
	require.Error(t, err)

	_, err = tbls.ParsePublicKey(make([]byte, 47))
	require.Error(t, err)
}
