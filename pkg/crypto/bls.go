package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/bls"
	"github.com/fystack/walletd/pkg/address"
)

// Public keys live in G1 (48 bytes), signatures in G2 (96 bytes).
type blsKey = bls.KeyG1SigG2

const (
	blsIKMBytes        = 32
	blsPrivateKeyBytes = 32
	blsSignatureBytes  = 96
)

type blsSigner struct{}

func init() {
	RegisterSignature(SigTypeBLS, blsSigner{})
}

func (blsSigner) GenPrivate() ([]byte, error) {
	ikm := make([]byte, blsIKMBytes)
	if _, err := rand.Read(ikm); err != nil {
		return nil, err
	}
	priv, err := bls.KeyGen[blsKey](ikm, nil, nil)
	if err != nil {
		return nil, err
	}
	return priv.MarshalBinary()
}

func (blsSigner) ToPublic(pk []byte) ([]byte, error) {
	priv, err := blsPrivateKey(pk)
	if err != nil {
		return nil, err
	}
	return priv.PublicKey().MarshalBinary()
}

func (blsSigner) Sign(pk []byte, msg []byte) ([]byte, error) {
	priv, err := blsPrivateKey(pk)
	if err != nil {
		return nil, err
	}
	return []byte(bls.Sign(priv, msg)), nil
}

func (blsSigner) Verify(sig []byte, a address.Address, msg []byte) error {
	if a.Protocol() != address.BLS {
		return fmt.Errorf("%w: signer %s is not a bls address", ErrVerifyFailed, a)
	}
	if len(sig) != blsSignatureBytes {
		return fmt.Errorf("%w: malformed bls signature", ErrVerifyFailed)
	}
	pub := new(bls.PublicKey[blsKey])
	if err := pub.UnmarshalBinary(a.Payload()); err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	if !bls.Verify(pub, msg, sig) {
		return ErrVerifyFailed
	}
	return nil
}

func (blsSigner) Address(pub []byte) (address.Address, error) {
	return address.NewBLSAddress(pub)
}

func blsPrivateKey(pk []byte) (*bls.PrivateKey[blsKey], error) {
	if len(pk) != blsPrivateKeyBytes {
		return nil, fmt.Errorf("%w: bls private key must be %d bytes, got %d", ErrInvalidKey, blsPrivateKeyBytes, len(pk))
	}
	if isZero(pk) {
		return nil, fmt.Errorf("%w: zero bls scalar", ErrInvalidKey)
	}
	priv := new(bls.PrivateKey[blsKey])
	if err := priv.UnmarshalBinary(pk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return priv, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
