// Package client is a JSON-RPC client for the walletd wallet methods.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/fystack/walletd/pkg/rpc"
	"github.com/google/uuid"
)

// Transport delivers one encoded request and returns the encoded response.
type Transport interface {
	RoundTrip(ctx context.Context, body []byte) ([]byte, error)
}

type Client struct {
	transport Transport
}

func New(t Transport) *Client {
	return &Client{transport: t}
}

// Call invokes method and decodes the result into out, which may be nil.
// Server side failures are returned as *rpc.Error.
func (c *Client) Call(ctx context.Context, method string, out any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	id, err := json.Marshal(uuid.NewString())
	if err != nil {
		return err
	}
	body, err := json.Marshal(rpc.Request{JSONRPC: "2.0", ID: id, Method: method, Params: rawParams})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	raw, err := c.transport.RoundTrip(ctx, body)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	var resp rpc.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if string(resp.ID) != string(id) {
		return fmt.Errorf("%s: response id %s does not match request", method, resp.ID)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) WalletNew(ctx context.Context, typ crypto.SigType) (address.Address, error) {
	var addr address.Address
	err := c.Call(ctx, rpc.MethodWalletNew, &addr, typ)
	return addr, err
}

func (c *Client) WalletList(ctx context.Context) ([]address.Address, error) {
	var addrs []address.Address
	err := c.Call(ctx, rpc.MethodWalletList, &addrs)
	return addrs, err
}

// WalletDefaultAddress returns address.Undef when no default is set.
func (c *Client) WalletDefaultAddress(ctx context.Context) (address.Address, error) {
	var addr *address.Address
	if err := c.Call(ctx, rpc.MethodWalletDefaultAddress, &addr); err != nil {
		return address.Undef, err
	}
	if addr == nil {
		return address.Undef, nil
	}
	return *addr, nil
}

func (c *Client) WalletSetDefault(ctx context.Context, addr address.Address) error {
	return c.Call(ctx, rpc.MethodWalletSetDefault, nil, addr)
}

func (c *Client) WalletHas(ctx context.Context, addr address.Address) (bool, error) {
	var has bool
	err := c.Call(ctx, rpc.MethodWalletHas, &has, addr)
	return has, err
}

// WalletBalance returns the balance in attoFIL as a decimal string.
func (c *Client) WalletBalance(ctx context.Context, addr address.Address) (string, error) {
	var bal string
	err := c.Call(ctx, rpc.MethodWalletBalance, &bal, addr)
	return bal, err
}

func (c *Client) WalletExport(ctx context.Context, addr address.Address) (keystore.KeyInfo, error) {
	var ki keystore.KeyInfo
	err := c.Call(ctx, rpc.MethodWalletExport, &ki, addr)
	return ki, err
}

func (c *Client) WalletImport(ctx context.Context, ki keystore.KeyInfo) (address.Address, error) {
	var addr address.Address
	err := c.Call(ctx, rpc.MethodWalletImport, &addr, ki)
	return addr, err
}

func (c *Client) WalletSign(ctx context.Context, addr address.Address, msg []byte) (*crypto.Signature, error) {
	var sig crypto.Signature
	if err := c.Call(ctx, rpc.MethodWalletSign, &sig, addr, msg); err != nil {
		return nil, err
	}
	return &sig, nil
}

func (c *Client) WalletVerify(ctx context.Context, addr address.Address, msg []byte, sig *crypto.Signature) (bool, error) {
	var ok bool
	err := c.Call(ctx, rpc.MethodWalletVerify, &ok, addr, msg, sig)
	return ok, err
}

func (c *Client) WalletDelete(ctx context.Context, addr address.Address) error {
	return c.Call(ctx, rpc.MethodWalletDelete, nil, addr)
}
