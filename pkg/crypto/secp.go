package crypto

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/fystack/walletd/pkg/address"
	"golang.org/x/crypto/blake2b"
)

const (
	secpPrivateKeyBytes = 32
	secpSignatureBytes  = 65
)

type secpSigner struct{}

func init() {
	RegisterSignature(SigTypeSecp256k1, secpSigner{})
}

func (secpSigner) GenPrivate() ([]byte, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return priv.Serialize(), nil
}

func (secpSigner) ToPublic(pk []byte) ([]byte, error) {
	priv, err := secpPrivateKey(pk)
	if err != nil {
		return nil, err
	}
	return priv.PubKey().SerializeUncompressed(), nil
}

// Sign produces r || s || v over the blake2b-256 digest of msg.
func (secpSigner) Sign(pk []byte, msg []byte) ([]byte, error) {
	priv, err := secpPrivateKey(pk)
	if err != nil {
		return nil, err
	}
	digest := blake2b.Sum256(msg)

	compact, err := ecdsa.SignCompact(priv, digest[:], false)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 sign: %w", err)
	}
	// compact is v+27 || r || s
	sig := make([]byte, secpSignatureBytes)
	copy(sig, compact[1:])
	sig[64] = compact[0] - 27
	return sig, nil
}

func (secpSigner) Verify(sig []byte, a address.Address, msg []byte) error {
	if len(sig) != secpSignatureBytes || sig[64] > 3 {
		return fmt.Errorf("%w: malformed secp256k1 signature", ErrVerifyFailed)
	}
	digest := blake2b.Sum256(msg)

	compact := make([]byte, secpSignatureBytes)
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	signer, err := address.NewSecp256k1Address(pub.SerializeUncompressed())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	if signer != a {
		return ErrVerifyFailed
	}
	return nil
}

func (secpSigner) Address(pub []byte) (address.Address, error) {
	return address.NewSecp256k1Address(pub)
}

func secpPrivateKey(pk []byte) (*btcec.PrivateKey, error) {
	if len(pk) != secpPrivateKeyBytes {
		return nil, fmt.Errorf("%w: secp256k1 private key must be %d bytes, got %d", ErrInvalidKey, secpPrivateKeyBytes, len(pk))
	}
	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(pk); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("%w: secp256k1 scalar out of range", ErrInvalidKey)
	}
	priv, _ := btcec.PrivKeyFromBytes(pk)
	return priv, nil
}
