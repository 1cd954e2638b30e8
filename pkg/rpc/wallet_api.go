package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/auth"
	"github.com/fystack/walletd/pkg/chain"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/event"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/fystack/walletd/pkg/logger"
	"github.com/fystack/walletd/pkg/wallet"
)

const (
	MethodWalletBalance        = "Filecoin.WalletBalance"
	MethodWalletDefaultAddress = "Filecoin.WalletDefaultAddress"
	MethodWalletExport         = "Filecoin.WalletExport"
	MethodWalletHas            = "Filecoin.WalletHas"
	MethodWalletImport         = "Filecoin.WalletImport"
	MethodWalletList           = "Filecoin.WalletList"
	MethodWalletNew            = "Filecoin.WalletNew"
	MethodWalletSetDefault     = "Filecoin.WalletSetDefault"
	MethodWalletSign           = "Filecoin.WalletSign"
	MethodWalletVerify         = "Filecoin.WalletVerify"
	MethodWalletDelete         = "Filecoin.WalletDelete"
)

func (h *Handler) walletMethods() map[string]method {
	return map[string]method{
		MethodWalletBalance:        {perm: auth.PermRead, call: h.walletBalance},
		MethodWalletDefaultAddress: {perm: auth.PermRead, call: h.walletDefaultAddress},
		MethodWalletExport:         {perm: auth.PermAdmin, call: h.walletExport},
		MethodWalletHas:            {perm: auth.PermWrite, call: h.walletHas},
		MethodWalletImport:         {perm: auth.PermAdmin, call: h.walletImport},
		MethodWalletList:           {perm: auth.PermWrite, call: h.walletList},
		MethodWalletNew:            {perm: auth.PermWrite, call: h.walletNew},
		MethodWalletSetDefault:     {perm: auth.PermWrite, call: h.walletSetDefault},
		MethodWalletSign:           {perm: auth.PermSign, call: h.walletSign},
		MethodWalletVerify:         {perm: auth.PermRead, call: h.walletVerify},
		MethodWalletDelete:         {perm: auth.PermWrite, call: h.walletDelete},
	}
}

// walletBalance reads chain state only, so it does not take the wallet guard.
func (h *Handler) walletBalance(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 1); err != nil {
		return nil, err
	}
	addr, err := parseAddress(params[0])
	if err != nil {
		return nil, err
	}
	bal, err := chain.Balance(ctx, h.state, addr)
	if err != nil {
		return nil, err
	}
	return chain.FormatAtto(bal), nil
}

func (h *Handler) walletDefaultAddress(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 0); err != nil {
		return nil, err
	}
	var (
		addr address.Address
		ok   bool
	)
	err := h.shared.Read(ctx, func(r wallet.Reader) error {
		var err error
		addr, ok, err = r.DefaultAddress()
		return err
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return addr, nil
}

func (h *Handler) walletExport(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 1); err != nil {
		return nil, err
	}
	addr, err := parseAddress(params[0])
	if err != nil {
		return nil, err
	}
	var ki keystore.KeyInfo
	err = h.shared.Read(ctx, func(r wallet.Reader) error {
		var err error
		ki, err = r.Export(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Key exported", "address", addr.String())
	return ki, nil
}

func (h *Handler) walletHas(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 1); err != nil {
		return nil, err
	}
	addr, err := parseAddress(params[0])
	if err != nil {
		return nil, err
	}
	var has bool
	err = h.shared.Read(ctx, func(r wallet.Reader) error {
		var err error
		has, err = r.Has(addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return has, nil
}

func (h *Handler) walletImport(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 1); err != nil {
		return nil, err
	}
	var ki keystore.KeyInfo
	if err := json.Unmarshal(params[0], &ki); err != nil {
		if errors.Is(err, crypto.ErrUnsupportedSigType) {
			return nil, err
		}
		return nil, invalidParams("invalid key info: %v", err)
	}
	var addr address.Address
	err := h.shared.Write(ctx, func(w *wallet.Wallet) error {
		var err error
		if addr, err = w.Import(ki); err != nil {
			return err
		}
		updateKeyCount(w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.publish(event.KeyImported, addr, ki.Type)
	return addr, nil
}

func (h *Handler) walletList(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 0); err != nil {
		return nil, err
	}
	var addrs []address.Address
	err := h.shared.Read(ctx, func(r wallet.Reader) error {
		var err error
		addrs, err = r.ListAddrs()
		return err
	})
	if err != nil {
		return nil, err
	}
	keystoreKeysGauge.Set(float64(len(addrs)))
	if addrs == nil {
		addrs = []address.Address{}
	}
	return addrs, nil
}

func (h *Handler) walletNew(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 1); err != nil {
		return nil, err
	}
	var typ crypto.SigType
	if err := json.Unmarshal(params[0], &typ); err != nil {
		if errors.Is(err, crypto.ErrUnsupportedSigType) {
			return nil, err
		}
		return nil, invalidParams("invalid signature type: %v", err)
	}
	var addr address.Address
	err := h.shared.Write(ctx, func(w *wallet.Wallet) error {
		var err error
		if addr, err = w.GenerateKey(typ); err != nil {
			return err
		}
		updateKeyCount(w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.publish(event.KeyCreated, addr, typ)
	return addr, nil
}

func (h *Handler) walletSetDefault(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 1); err != nil {
		return nil, err
	}
	addr, err := parseAddress(params[0])
	if err != nil {
		return nil, err
	}
	err = h.shared.Write(ctx, func(w *wallet.Wallet) error {
		return w.SetDefault(addr)
	})
	if err != nil {
		return nil, err
	}
	h.publish(event.DefaultChanged, addr, crypto.SigTypeUnknown)
	return nil, nil
}

// walletSign resolves non-key addresses against chain state before taking
// the guard, so a slow state lookup never holds up writers.
func (h *Handler) walletSign(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 2); err != nil {
		return nil, err
	}
	addr, err := parseAddress(params[0])
	if err != nil {
		return nil, err
	}
	var msg []byte
	if err := json.Unmarshal(params[1], &msg); err != nil {
		return nil, invalidParams("message must be base64: %v", err)
	}

	keyAddr, err := h.resolveKeyAddress(ctx, addr)
	if err != nil {
		return nil, err
	}

	var sig *crypto.Signature
	err = h.shared.Read(ctx, func(r wallet.Reader) error {
		var err error
		sig, err = r.Sign(keyAddr, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// walletVerify needs no key material and reports any mismatch or malformed
// signature as false.
func (h *Handler) walletVerify(_ context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 3); err != nil {
		return nil, err
	}
	addr, err := parseAddress(params[0])
	if err != nil {
		return nil, err
	}
	var msg []byte
	if err := json.Unmarshal(params[1], &msg); err != nil {
		return nil, invalidParams("message must be base64: %v", err)
	}
	var sig crypto.Signature
	if err := json.Unmarshal(params[2], &sig); err != nil {
		logger.Debug("Malformed signature in verify request", "error", err)
		return false, nil
	}
	return crypto.Verify(&sig, addr, msg) == nil, nil
}

func (h *Handler) walletDelete(ctx context.Context, params []json.RawMessage) (any, error) {
	if err := expectParams(params, 1); err != nil {
		return nil, err
	}
	addr, err := parseAddress(params[0])
	if err != nil {
		return nil, err
	}
	err = h.shared.Write(ctx, func(w *wallet.Wallet) error {
		if err := w.Delete(addr); err != nil {
			return err
		}
		updateKeyCount(w)
		return nil
	})
	if err != nil {
		return nil, err
	}
	h.publish(event.KeyDeleted, addr, crypto.SigTypeUnknown)
	return nil, nil
}

func (h *Handler) resolveKeyAddress(ctx context.Context, addr address.Address) (address.Address, error) {
	switch addr.Protocol() {
	case address.SECP256K1, address.BLS:
		return addr, nil
	}
	return h.state.ResolveToKeyAddress(ctx, addr)
}

func (h *Handler) publish(typ event.WalletEventType, addr address.Address, sigType crypto.SigType) {
	e := event.WalletEvent{Type: typ, Address: addr.String()}
	if sigType != crypto.SigTypeUnknown {
		e.SigType = sigType.String()
	}
	if err := h.events.Publish(e); err != nil {
		logger.Warn("Failed to publish wallet event", "type", typ, "address", addr.String(), "error", err)
	}
}

// updateKeyCount runs under the write guard.
func updateKeyCount(w *wallet.Wallet) {
	addrs, err := w.ListAddrs()
	if err != nil {
		logger.Warn("Failed to count keys", "error", err)
		return
	}
	keystoreKeysGauge.Set(float64(len(addrs)))
}

func expectParams(params []json.RawMessage, n int) error {
	if len(params) != n {
		return invalidParams("expected %d params, got %d", n, len(params))
	}
	return nil
}

func parseAddress(raw json.RawMessage) (address.Address, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return address.Undef, invalidParams("address must be a string")
	}
	addr, err := address.NewFromString(s)
	if err != nil {
		return address.Undef, invalidParams("invalid address %q: %v", s, err)
	}
	return addr, nil
}
