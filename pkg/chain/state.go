// Package chain exposes the narrow view of chain state the wallet needs:
// actor balances and resolution of actor ids to key addresses.
package chain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fystack/walletd/pkg/address"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// attoExp is log10 of attoFIL per FIL.
const attoExp = 18

var (
	ErrActorNotFound = errors.New("actor not found")
	ErrNotKeyAddress = errors.New("address cannot be resolved to a key address")
)

type Actor struct {
	ID         uint64
	KeyAddress address.Address
	// Balance in attoFIL.
	Balance decimal.Decimal
}

// State answers queries against the heaviest known tipset.
type State interface {
	GetActor(ctx context.Context, addr address.Address) (*Actor, error)
	ResolveToKeyAddress(ctx context.Context, addr address.Address) (address.Address, error)
}

// Balance returns the attoFIL balance of addr, zero for unknown actors.
func Balance(ctx context.Context, st State, addr address.Address) (decimal.Decimal, error) {
	act, err := st.GetActor(ctx, addr)
	if errors.Is(err, ErrActorNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return act.Balance, nil
}

// MemoryState is an in-memory actor table, typically seeded from a genesis file.
type MemoryState struct {
	mu     sync.RWMutex
	byID   map[uint64]*Actor
	byAddr map[address.Address]*Actor
}

var _ State = (*MemoryState)(nil)

func NewMemoryState() *MemoryState {
	return &MemoryState{
		byID:   make(map[uint64]*Actor),
		byAddr: make(map[address.Address]*Actor),
	}
}

func (m *MemoryState) SetActor(act Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := act
	m.byID[a.ID] = &a
	if !a.KeyAddress.Empty() {
		m.byAddr[a.KeyAddress] = &a
	}
}

func (m *MemoryState) GetActor(_ context.Context, addr address.Address) (*Actor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var act *Actor
	if addr.Protocol() == address.ID {
		id, err := addr.ID()
		if err != nil {
			return nil, err
		}
		act = m.byID[id]
	} else {
		act = m.byAddr[addr]
	}
	if act == nil {
		return nil, fmt.Errorf("%s: %w", addr, ErrActorNotFound)
	}
	cp := *act
	return &cp, nil
}

// ResolveToKeyAddress returns key addresses unchanged and maps id addresses
// to the key address of the actor.
func (m *MemoryState) ResolveToKeyAddress(ctx context.Context, addr address.Address) (address.Address, error) {
	switch addr.Protocol() {
	case address.SECP256K1, address.BLS:
		return addr, nil
	case address.ID:
		act, err := m.GetActor(ctx, addr)
		if err != nil {
			return address.Undef, err
		}
		if act.KeyAddress.Empty() {
			return address.Undef, fmt.Errorf("%s: %w", addr, ErrNotKeyAddress)
		}
		return act.KeyAddress, nil
	}
	return address.Undef, fmt.Errorf("%s: %w", addr, ErrNotKeyAddress)
}

type genesisFile struct {
	Actors []genesisActor `yaml:"actors"`
}

type genesisActor struct {
	ID         uint64 `yaml:"id"`
	KeyAddress string `yaml:"key_address"`
	// Balance in FIL, decimal string.
	Balance string `yaml:"balance"`
}

// LoadGenesis reads an actor table from a YAML file.
func LoadGenesis(path string) (*MemoryState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return ParseGenesis(data)
}

func ParseGenesis(data []byte) (*MemoryState, error) {
	var gf genesisFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}

	st := NewMemoryState()
	for i, ga := range gf.Actors {
		act := Actor{ID: ga.ID, Balance: decimal.Zero}
		if ga.KeyAddress != "" {
			addr, err := address.NewFromString(ga.KeyAddress)
			if err != nil {
				return nil, fmt.Errorf("genesis actor %d: %w", i, err)
			}
			act.KeyAddress = addr
		}
		if ga.Balance != "" {
			fil, err := decimal.NewFromString(ga.Balance)
			if err != nil {
				return nil, fmt.Errorf("genesis actor %d balance: %w", i, err)
			}
			if fil.IsNegative() {
				return nil, fmt.Errorf("genesis actor %d: negative balance", i)
			}
			act.Balance = FILToAtto(fil)
		}
		st.SetActor(act)
	}
	return st, nil
}

// FILToAtto converts a FIL amount to whole attoFIL.
func FILToAtto(fil decimal.Decimal) decimal.Decimal {
	return fil.Shift(attoExp).Truncate(0)
}

// FormatAtto prints an attoFIL amount as an integer string.
func FormatAtto(atto decimal.Decimal) string {
	return atto.Truncate(0).StringFixed(0)
}
