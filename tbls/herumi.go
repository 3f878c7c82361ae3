// Copyright © 2024-2026 Threshnet Inc. Licensed under the terms of a Business Source License 1.1

package tbls

import (
	"fmt"
	"sync"

	"github.com/herumi/bls-eth-go-binary/bls"
)

var initializationOnce = sync.Once{}

// PSA: as much as init() is (almost) an antipattern in Go, the Herumi BLS implementation
// needs an initialization routine before it can be used.
// Hence, we embed it in an init() method along with a sync.Once, so that this effect is only run once.
func init() {
	initializationOnce.Do(func() {
		if err := bls.Init(bls.BLS12_381); err != nil {
			panic(fmt.Errorf("cannot initialize Herumi BLS, %w", err))
		}

		if err := bls.SetETHmode(bls.EthModeLatest); err != nil {
			panic(fmt.Errorf("cannot initialize Herumi BLS, %w", err))
		}
	})
}

// Herumi is an Implementation with Herumi-specific inner logic.
type Herumi struct{}

func (Herumi) GenerateSecretKey() (PrivateKey, error) {
	var p bls.SecretKey
	p.SetByCSPRNG()

	// Converting the serialized secret to a pointer to an instance of PrivateKey,
	// which is an array with constant size, then dereferencing it to return a copy.
	// Ref: https://go.dev/ref/spec#Conversions_from_slice_to_array_pointer
	return *(*PrivateKey)(p.Serialize()), nil
}

func (Herumi) SecretToPublicKey(secret PrivateKey) (PublicKey, error) {
	var p bls.SecretKey

	if err := p.Deserialize(secret[:]); err != nil {
		return PublicKey{}, fmt.Errorf("cannot unmarshal secret into Herumi secret key, %w", err)
	}

	pubk, err := p.GetSafePublicKey()
	if err != nil {
		return PublicKey{}, fmt.Errorf("cannot obtain public key from secret, %w", err)
	}

	return *(*PublicKey)(pubk.Serialize()), nil
}

func (Herumi) Sign(privateKey PrivateKey, data []byte) (Signature, error) {
	var p bls.SecretKey

	if err := p.Deserialize(privateKey[:]); err != nil {
		return Signature{}, fmt.Errorf("cannot unmarshal secret into Herumi secret key, %w", err)
	}

	return *(*Signature)(p.SignByte(data).Serialize()), nil
}

func (Herumi) Verify(publicKey PublicKey, data []byte, signature Signature) error {
	var sig bls.Sign
	if err := sig.Deserialize(signature[:]); err != nil {
		return fmt.Errorf("cannot unmarshal signature into Herumi signature, %w", err)
	}

	var pubk bls.PublicKey
	if err := pubk.Deserialize(publicKey[:]); err != nil {
		return fmt.Errorf("cannot unmarshal public key into Herumi public key, %w", err)
	}

	if !sig.VerifyByte(&pubk, data) {
		return fmt.Errorf("signature not verified")
	}

	return nil
}

func (Herumi) Aggregate(signatures []Signature) (Signature, error) {
	if len(signatures) == 0 {
		return Signature{}, fmt.Errorf("no signatures to aggregate")
	}

	var agg bls.Sign
	if err := agg.Deserialize(signatures[0][:]); err != nil {
		return Signature{}, fmt.Errorf("cannot unmarshal signature into Herumi signature, %w", err)
	}

	for _, rawSignature := range signatures[1:] {
		var sig bls.Sign
		if err := sig.Deserialize(rawSignature[:]); err != nil {
			return Signature{}, fmt.Errorf("cannot unmarshal signature into Herumi signature, %w", err)
		}

		agg.Add(&sig)
	}

	return *(*Signature)(agg.Serialize()), nil
}

func (Herumi) AggregatePublicKeys(publicKeys []PublicKey) (PublicKey, error) {
	if len(publicKeys) == 0 {
		return PublicKey{}, fmt.Errorf("no public keys to aggregate")
	}

	var agg bls.PublicKey
	if err := agg.Deserialize(publicKeys[0][:]); err != nil {
		return PublicKey{}, fmt.Errorf("cannot unmarshal public key into Herumi public key, %w", err)
	}

	for _, rawKey := range publicKeys[1:] {
		var pubk bls.PublicKey
		if err := pubk.Deserialize(rawKey[:]); err != nil {
			return PublicKey{}, fmt.Errorf("cannot unmarshal public key into Herumi public key, %w", err)
		}

		agg.Add(&pubk)
	}

	return *(*PublicKey)(agg.Serialize()), nil
}

func (Herumi) ParseSignature(data []byte) (Signature, error) {
	var sig bls.Sign
	if err := sig.Deserialize(data); err != nil {
		return Signature{}, fmt.Errorf("cannot unmarshal signature into Herumi signature, %w", err)
	}

	return *(*Signature)(sig.Serialize()), nil
}

func (Herumi) ParsePublicKey(data []byte) (PublicKey, error) {
	var pubk bls.PublicKey
	if err := pubk.Deserialize(data); err != nil {
		return PublicKey{}, fmt.Errorf("cannot unmarshal public key into Herumi public key, %w", err)
	}

	return *(*PublicKey)(pubk.Serialize()), nil
}
