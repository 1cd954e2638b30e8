// Package crypto generates keys and produces/checks signatures for the
// signature schemes a wallet can hold.
package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/fystack/walletd/pkg/address"
)

type SigType byte

const (
	SigTypeUnknown   SigType = 0
	SigTypeSecp256k1 SigType = 1
	SigTypeBLS       SigType = 2
)

var (
	ErrUnsupportedSigType = errors.New("unsupported signature type")
	ErrInvalidKey         = errors.New("invalid key")
	ErrVerifyFailed       = errors.New("signature verification failed")
)

func (t SigType) String() string {
	switch t {
	case SigTypeSecp256k1:
		return "secp256k1"
	case SigTypeBLS:
		return "bls"
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

func ParseSigType(s string) (SigType, error) {
	switch s {
	case "secp256k1":
		return SigTypeSecp256k1, nil
	case "bls":
		return SigTypeBLS, nil
	}
	return SigTypeUnknown, fmt.Errorf("%w: %q", ErrUnsupportedSigType, s)
}

func (t SigType) MarshalText() ([]byte, error) {
	switch t {
	case SigTypeSecp256k1, SigTypeBLS:
		return []byte(t.String()), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnsupportedSigType, byte(t))
}

func (t *SigType) UnmarshalText(text []byte) error {
	parsed, err := ParseSigType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalJSON accepts both the name and the numeric tag.
func (t *SigType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return t.UnmarshalText([]byte(s))
	}

	n, err := strconv.ParseUint(string(data), 10, 8)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedSigType, data)
	}
	switch SigType(n) {
	case SigTypeSecp256k1, SigTypeBLS:
		*t = SigType(n)
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnsupportedSigType, n)
}

// Signature is a scheme tagged signature. On the wire the type is numeric.
type Signature struct {
	Type SigType
	Data []byte
}

type signatureJSON struct {
	Type byte
	Data []byte
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{Type: byte(s.Type), Data: s.Data})
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type SigType
		Data []byte
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Type = raw.Type
	s.Data = raw.Data
	return nil
}

// SigShim is implemented by every supported signature scheme.
type SigShim interface {
	GenPrivate() ([]byte, error)
	ToPublic(pk []byte) ([]byte, error)
	Sign(pk []byte, msg []byte) ([]byte, error)
	Verify(sig []byte, a address.Address, msg []byte) error
	Address(pub []byte) (address.Address, error)
}

var sigs = map[SigType]SigShim{}

// RegisterSignature is called from init of each scheme.
func RegisterSignature(typ SigType, vs SigShim) {
	sigs[typ] = vs
}

func shim(typ SigType) (SigShim, error) {
	s, ok := sigs[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSigType, typ)
	}
	return s, nil
}

// Generate returns fresh private key bytes for the scheme.
func Generate(typ SigType) ([]byte, error) {
	s, err := shim(typ)
	if err != nil {
		return nil, err
	}
	pk, err := s.GenPrivate()
	if err != nil {
		return nil, fmt.Errorf("generate %s key: %w", typ, err)
	}
	return pk, nil
}

func ToPublic(typ SigType, pk []byte) ([]byte, error) {
	s, err := shim(typ)
	if err != nil {
		return nil, err
	}
	return s.ToPublic(pk)
}

func Sign(typ SigType, pk []byte, msg []byte) (*Signature, error) {
	s, err := shim(typ)
	if err != nil {
		return nil, err
	}
	data, err := s.Sign(pk, msg)
	if err != nil {
		return nil, err
	}
	return &Signature{Type: typ, Data: data}, nil
}

// Verify checks sig over msg against the signer address only.
func Verify(sig *Signature, addr address.Address, msg []byte) error {
	if sig == nil {
		return fmt.Errorf("%w: nil signature", ErrVerifyFailed)
	}
	s, err := shim(sig.Type)
	if err != nil {
		return err
	}
	return s.Verify(sig.Data, addr, msg)
}

// AddressOf derives the address a public key signs for.
func AddressOf(typ SigType, pub []byte) (address.Address, error) {
	s, err := shim(typ)
	if err != nil {
		return address.Undef, err
	}
	return s.Address(pub)
}
