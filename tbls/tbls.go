// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

// Package tbls provides the BLS signing primitives used to attest job results.
// The curve arithmetic is delegated to a backing Implementation; the rest of
// the app only handles the compressed serialized representations.
package tbls

import "sync"

var (
	impl     Implementation = Herumi{}
	implLock sync.Mutex
)

type (
	// PrivateKey is a compressed BLS12-381 private key.
	PrivateKey [32]byte

	// PublicKey is a compressed BLS12-381 public key.
	PublicKey [48]byte

	// Signature is a compressed BLS12-381 signature.
	Signature [96]byte
)

// Implementation defines the backing implementation for all the public functions of this package.
type Implementation interface {
	// GenerateSecretKey generates a secret key and returns its compressed serialized representation.
	GenerateSecretKey() (PrivateKey, error)

	// SecretToPublicKey extracts the public key associated with the secret passed in input.
	SecretToPublicKey(secret PrivateKey) (PublicKey, error)

	// Sign signs data with the provided private key, and returns the resulting signature.
	Sign(privateKey PrivateKey, data []byte) (Signature, error)

	// Verify verifies that signature has been produced with the private key associated
	// with publicKey, on the provided data.
	Verify(publicKey PublicKey, data []byte, signature Signature) error

	// Aggregate combines multiple signatures over the same data into one.
	Aggregate(signatures []Signature) (Signature, error)

	// AggregatePublicKeys combines multiple public keys into the key the
	// aggregated signature verifies against.
	AggregatePublicKeys(publicKeys []PublicKey) (PublicKey, error)

	// ParseSignature validates and converts a compressed serialized signature.
	ParseSignature(data []byte) (Signature, error)

	// ParsePublicKey validates and converts a compressed serialized public key.
	ParsePublicKey(data []byte) (PublicKey, error)
}

// SetImplementation sets newImpl as the package backing implementation.
func SetImplementation(newImpl Implementation) {
	implLock.Lock()
	defer implLock.Unlock()
	impl = newImpl
}

func GenerateSecretKey() (PrivateKey, error) {
	return impl.GenerateSecretKey()
}

func SecretToPublicKey(secret PrivateKey) (PublicKey, error) {
	return impl.SecretToPublicKey(secret)
}

func Sign(privateKey PrivateKey, data []byte) (Signature, error) {
	return impl.Sign(privateKey, data)
}

func Verify(publicKey PublicKey, data []byte, signature Signature) error {
	return impl.Verify(publicKey, data, signature)
}

func Aggregate(signatures []Signature) (Signature, error) {
	return impl.Aggregate(signatures)
}

func AggregatePublicKeys(publicKeys []PublicKey) (PublicKey, error) {
	return impl.AggregatePublicKeys(publicKeys)
}

func ParseSignature(data []byte) (Signature, error) {
	return impl.ParseSignature(data)
}

func ParsePublicKey(data []byte) (PublicKey, error) {
	return impl.ParsePublicKey(data)
}
