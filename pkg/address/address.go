// Package address implements Filecoin style actor addresses.
package address

import (
	"bytes"
	"encoding/base32"
	"errors"
	"fmt"
	"strconv"

	"github.com/multiformats/go-varint"
	"golang.org/x/crypto/blake2b"
)

type Protocol byte

const (
	ID Protocol = iota
	SECP256K1
	Actor
	BLS
)

const (
	PayloadHashLength  = 20
	BlsPublicKeyBytes  = 48
	ChecksumHashLength = 4

	maxIDDigits = 20

	// UndefString is what an undefined address prints as.
	UndefString = "<empty>"
)

var (
	ErrUnknownNetwork  = errors.New("unknown address network")
	ErrUnknownProtocol = errors.New("unknown address protocol")
	ErrInvalidPayload  = errors.New("invalid address payload")
	ErrInvalidLength   = errors.New("invalid address length")
	ErrInvalidChecksum = errors.New("invalid address checksum")
)

var encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Address is an immutable actor address. The zero value is Undef.
type Address struct{ str string }

var Undef = Address{}

func (p Protocol) String() string {
	switch p {
	case ID:
		return "id"
	case SECP256K1:
		return "secp256k1"
	case Actor:
		return "actor"
	case BLS:
		return "bls"
	}
	return fmt.Sprintf("protocol(%d)", byte(p))
}

func NewIDAddress(id uint64) (Address, error) {
	return newAddress(ID, varint.ToUvarint(id))
}

// NewSecp256k1Address derives the address of an uncompressed secp256k1 public key.
func NewSecp256k1Address(pubkey []byte) (Address, error) {
	return newAddress(SECP256K1, addressHash(pubkey))
}

func NewActorAddress(data []byte) (Address, error) {
	return newAddress(Actor, addressHash(data))
}

func NewBLSAddress(pubkey []byte) (Address, error) {
	return newAddress(BLS, pubkey)
}

func NewFromBytes(raw []byte) (Address, error) {
	if len(raw) == 0 {
		return Undef, nil
	}
	return newAddress(Protocol(raw[0]), raw[1:])
}

func newAddress(protocol Protocol, payload []byte) (Address, error) {
	switch protocol {
	case ID:
		v, n, err := varint.FromUvarint(payload)
		if err != nil {
			return Undef, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if n != len(payload) {
			return Undef, ErrInvalidPayload
		}
		if v > 1<<63-1 {
			return Undef, fmt.Errorf("%w: id too large", ErrInvalidPayload)
		}
	case SECP256K1, Actor:
		if len(payload) != PayloadHashLength {
			return Undef, ErrInvalidPayload
		}
	case BLS:
		if len(payload) != BlsPublicKeyBytes {
			return Undef, ErrInvalidPayload
		}
	default:
		return Undef, ErrUnknownProtocol
	}
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(protocol)
	copy(buf[1:], payload)
	return Address{string(buf)}, nil
}

func (a Address) Empty() bool { return a == Undef }

func (a Address) Protocol() Protocol {
	if len(a.str) == 0 {
		return Protocol(0xff)
	}
	return Protocol(a.str[0])
}

func (a Address) Payload() []byte {
	if len(a.str) == 0 {
		return nil
	}
	return []byte(a.str[1:])
}

// Bytes returns the protocol byte followed by the payload.
func (a Address) Bytes() []byte { return []byte(a.str) }

// ID returns the actor id of an ID address.
func (a Address) ID() (uint64, error) {
	if a.Protocol() != ID {
		return 0, fmt.Errorf("address %s is not an id address", a)
	}
	v, _, err := varint.FromUvarint(a.Payload())
	return v, err
}

// String formats the address for the network the process is configured for.
func (a Address) String() string {
	return a.Format(CurrentNetwork())
}

func (a Address) Format(n Network) string {
	if a.Empty() {
		return UndefString
	}
	prefix := n.Prefix()
	if prefix == "" {
		prefix = MainnetPrefix
	}

	p := a.Protocol()
	if p == ID {
		id, _, err := varint.FromUvarint(a.Payload())
		if err != nil {
			return UndefString
		}
		return prefix + strconv.Itoa(int(p)) + strconv.FormatUint(id, 10)
	}

	payload := a.Payload()
	cksm := Checksum(append([]byte{byte(p)}, payload...))
	return prefix + strconv.Itoa(int(p)) + encoding.EncodeToString(append(payload, cksm...))
}

// NewFromString parses an address printed under either network prefix.
func NewFromString(s string) (Address, error) {
	if len(s) < 3 {
		return Undef, ErrInvalidLength
	}
	if _, err := ParseNetworkPrefix(s[:1]); err != nil {
		return Undef, err
	}

	var protocol Protocol
	switch s[1] {
	case '0':
		protocol = ID
	case '1':
		protocol = SECP256K1
	case '2':
		protocol = Actor
	case '3':
		protocol = BLS
	default:
		return Undef, ErrUnknownProtocol
	}

	raw := s[2:]
	if protocol == ID {
		if len(raw) > maxIDDigits {
			return Undef, ErrInvalidLength
		}
		id, err := strconv.ParseUint(raw, 10, 63)
		if err != nil {
			return Undef, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return NewIDAddress(id)
	}

	decoded, err := encoding.DecodeString(raw)
	if err != nil {
		return Undef, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(decoded) < ChecksumHashLength+1 {
		return Undef, ErrInvalidLength
	}
	payload := decoded[:len(decoded)-ChecksumHashLength]
	cksm := decoded[len(decoded)-ChecksumHashLength:]

	if !ValidateChecksum(append([]byte{byte(protocol)}, payload...), cksm) {
		return Undef, ErrInvalidChecksum
	}
	return newAddress(protocol, payload)
}

func (a Address) MarshalText() ([]byte, error) {
	if a.Empty() {
		return []byte(UndefString), nil
	}
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	if string(text) == UndefString {
		*a = Undef
		return nil
	}
	addr, err := NewFromString(string(text))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// Checksum is the 4 byte blake2b digest of protocol byte and payload.
func Checksum(ingest []byte) []byte {
	return hash(ingest, ChecksumHashLength)
}

func ValidateChecksum(ingest, expect []byte) bool {
	return bytes.Equal(Checksum(ingest), expect)
}

func addressHash(ingest []byte) []byte {
	return hash(ingest, PayloadHashLength)
}

func hash(ingest []byte, size int) []byte {
	h, err := blake2b.New(size, nil)
	if err != nil {
		// only fails for size > 64
		panic(err)
	}
	h.Write(ingest)
	return h.Sum(nil)
}
