package address

import (
	"fmt"
	"strings"
	"sync/atomic"
)

type Network int32

const (
	Mainnet Network = iota
	Testnet
)

const (
	MainnetPrefix = "f"
	TestnetPrefix = "t"
)

var currentNetwork atomic.Int32

func (n Network) Prefix() string {
	switch n {
	case Mainnet:
		return MainnetPrefix
	case Testnet:
		return TestnetPrefix
	}
	return ""
}

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	}
	return fmt.Sprintf("network(%d)", int32(n))
}

// CurrentNetwork is the network used when printing addresses.
func CurrentNetwork() Network {
	return Network(currentNetwork.Load())
}

func SetCurrentNetwork(n Network) {
	currentNetwork.Store(int32(n))
}

func ParseNetwork(s string) (Network, error) {
	switch strings.ToLower(s) {
	case "mainnet", "":
		return Mainnet, nil
	case "testnet", "calibnet", "devnet":
		return Testnet, nil
	}
	return Mainnet, fmt.Errorf("%w: %q", ErrUnknownNetwork, s)
}

func ParseNetworkPrefix(p string) (Network, error) {
	switch p {
	case MainnetPrefix:
		return Mainnet, nil
	case TestnetPrefix:
		return Testnet, nil
	}
	return Mainnet, fmt.Errorf("%w: prefix %q", ErrUnknownNetwork, p)
}
