package rpc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fystack/walletd/pkg/address"
	"github.com/fystack/walletd/pkg/auth"
	"github.com/fystack/walletd/pkg/chain"
	"github.com/fystack/walletd/pkg/crypto"
	"github.com/fystack/walletd/pkg/event"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/fystack/walletd/pkg/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.WalletEvent
}

func (p *recordingPublisher) Publish(e event.WalletEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []event.WalletEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.WalletEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestHandler(t *testing.T, opts ...HandlerOption) *Handler {
	t.Helper()
	shared := wallet.NewShared(wallet.New(keystore.NewMemoryStore()))
	t.Cleanup(func() { _ = shared.Close() })
	return NewHandler(shared, opts...)
}

func call(t *testing.T, h *Handler, token, methodName string, params ...any) Response {
	t.Helper()
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  methodName,
		"params":  params,
	})
	require.NoError(t, err)
	raw := h.HandleRaw(context.Background(), token, body)
	require.NotNil(t, raw)

	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

func resultOf[T any](t *testing.T, resp Response) T {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)
	var out T
	require.NoError(t, json.Unmarshal(resp.Result, &out))
	return out
}

func requireCode(t *testing.T, resp Response, code int) {
	t.Helper()
	require.NotNil(t, resp.Error, "expected error code %d", code)
	assert.Equal(t, code, resp.Error.Code)
}

func TestWalletLifecycle(t *testing.T) {
	events := &recordingPublisher{}
	h := newTestHandler(t, WithEvents(events))

	def := call(t, h, "", MethodWalletDefaultAddress)
	require.Nil(t, def.Error)
	assert.Equal(t, "null", string(def.Result))

	list := resultOf[[]string](t, call(t, h, "", MethodWalletList))
	assert.Empty(t, list)

	a := resultOf[string](t, call(t, h, "", MethodWalletNew, "secp256k1"))
	b := resultOf[string](t, call(t, h, "", MethodWalletNew, 2))
	assert.Equal(t, "f1", a[:2])
	assert.Equal(t, "f3", b[:2])

	assert.Equal(t, a, resultOf[string](t, call(t, h, "", MethodWalletDefaultAddress)))
	assert.ElementsMatch(t, []string{a, b}, resultOf[[]string](t, call(t, h, "", MethodWalletList)))
	assert.True(t, resultOf[bool](t, call(t, h, "", MethodWalletHas, b)))

	setDef := call(t, h, "", MethodWalletSetDefault, b)
	require.Nil(t, setDef.Error)
	assert.Equal(t, "null", string(setDef.Result))
	assert.Equal(t, b, resultOf[string](t, call(t, h, "", MethodWalletDefaultAddress)))

	require.Nil(t, call(t, h, "", MethodWalletDelete, b).Error)
	assert.Equal(t, "null", string(call(t, h, "", MethodWalletDefaultAddress).Result))
	assert.False(t, resultOf[bool](t, call(t, h, "", MethodWalletHas, b)))
	assert.Equal(t, []string{a}, resultOf[[]string](t, call(t, h, "", MethodWalletList)))

	assert.Equal(t, []event.WalletEventType{
		event.KeyCreated, event.KeyCreated, event.DefaultChanged, event.KeyDeleted,
	}, events.types())
}

func TestWalletExportImport(t *testing.T) {
	src := newTestHandler(t)
	dst := newTestHandler(t)

	addr := resultOf[string](t, call(t, src, "", MethodWalletNew, "bls"))
	exported := call(t, src, "", MethodWalletExport, addr)
	ki := resultOf[keystore.KeyInfo](t, exported)
	assert.Equal(t, crypto.SigTypeBLS, ki.Type)

	imported := resultOf[string](t, call(t, dst, "", MethodWalletImport, ki))
	assert.Equal(t, addr, imported)

	// Import does not set a default.
	assert.Equal(t, "null", string(call(t, dst, "", MethodWalletDefaultAddress).Result))

	dup := call(t, dst, "", MethodWalletImport, ki)
	requireCode(t, dup, CodeKeyExists)
	assert.Equal(t, "Key already exists", dup.Error.Message)
}

func TestWalletSignVerify(t *testing.T) {
	h := newTestHandler(t)
	msg := []byte("hello filecoin")

	for _, typ := range []string{"secp256k1", "bls"} {
		t.Run(typ, func(t *testing.T) {
			addr := resultOf[string](t, call(t, h, "", MethodWalletNew, typ))

			sig := resultOf[crypto.Signature](t, call(t, h, "", MethodWalletSign, addr, msg))
			assert.NotEmpty(t, sig.Data)

			assert.True(t, resultOf[bool](t, call(t, h, "", MethodWalletVerify, addr, msg, sig)))
			assert.False(t, resultOf[bool](t, call(t, h, "", MethodWalletVerify, addr, []byte("other"), sig)))
			assert.False(t, resultOf[bool](t, call(t, h, "", MethodWalletVerify, addr, msg, "garbage")))
		})
	}
}

func TestWalletSignResolvesIDAddress(t *testing.T) {
	st := chain.NewMemoryState()
	h := newTestHandler(t, WithState(st))

	keyAddr := resultOf[string](t, call(t, h, "", MethodWalletNew, "secp256k1"))
	parsed, err := address.NewFromString(keyAddr)
	require.NoError(t, err)

	idAddr, err := address.NewIDAddress(1001)
	require.NoError(t, err)

	requireCode(t, call(t, h, "", MethodWalletSign, idAddr.String(), []byte("m")), CodeResolutionFailed)

	st.SetActor(chain.Actor{ID: 1001, KeyAddress: parsed, Balance: decimal.NewFromInt(7)})
	sig := resultOf[crypto.Signature](t, call(t, h, "", MethodWalletSign, idAddr.String(), []byte("m")))
	assert.True(t, resultOf[bool](t, call(t, h, "", MethodWalletVerify, keyAddr, []byte("m"), sig)))
}

func TestWalletBalance(t *testing.T) {
	st := chain.NewMemoryState()
	h := newTestHandler(t, WithState(st))

	key, err := wallet.GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)

	assert.Equal(t, "0", resultOf[string](t, call(t, h, "", MethodWalletBalance, key.Address.String())))

	st.SetActor(chain.Actor{ID: 7, KeyAddress: key.Address, Balance: chain.FILToAtto(decimal.NewFromFloat(1.5))})
	assert.Equal(t, "1500000000000000000", resultOf[string](t, call(t, h, "", MethodWalletBalance, key.Address.String())))
}

func TestErrorMapping(t *testing.T) {
	h := newTestHandler(t)
	missing, err := wallet.GenerateKey(crypto.SigTypeSecp256k1)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		params []any
		code   int
	}{
		{"export unknown key", MethodWalletExport, []any{missing.Address.String()}, CodeKeyNotFound},
		{"sign unknown key", MethodWalletSign, []any{missing.Address.String(), []byte("m")}, CodeKeyNotFound},
		{"set default unknown key", MethodWalletSetDefault, []any{missing.Address.String()}, CodeKeyNotFound},
		{"delete unknown key", MethodWalletDelete, []any{missing.Address.String()}, CodeKeyNotFound},
		{"unsupported sig type", MethodWalletNew, []any{"ed25519"}, CodeUnsupportedSigType},
		{"unsupported numeric sig type", MethodWalletNew, []any{9}, CodeUnsupportedSigType},
		{"invalid key", MethodWalletImport, []any{map[string]any{"Type": "secp256k1", "PrivateKey": []byte{1, 2, 3}}}, CodeInvalidKey},
		{"malformed address", MethodWalletHas, []any{"f1notanaddress"}, CodeInvalidParams},
		{"wrong param count", MethodWalletHas, []any{}, CodeInvalidParams},
		{"unknown method", "Filecoin.WalletFly", nil, CodeMethodNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, call(t, h, "", tt.method, tt.params...), tt.code)
		})
	}
}

func TestMalformedRequests(t *testing.T) {
	h := newTestHandler(t)

	decode := func(raw []byte) Response {
		var resp Response
		require.NoError(t, json.Unmarshal(raw, &resp))
		return resp
	}

	requireCode(t, decode(h.HandleRaw(context.Background(), "", []byte(`{"jsonrpc":`))), CodeParseError)
	requireCode(t, decode(h.HandleRaw(context.Background(), "", []byte(`{"jsonrpc":"1.0","id":1,"method":"x"}`))), CodeInvalidRequest)
	requireCode(t, decode(h.HandleRaw(context.Background(), "", []byte(`{"jsonrpc":"2.0","id":1,"method":"`+MethodWalletList+`","params":{"a":1}}`))), CodeInvalidParams)
	requireCode(t, decode(h.HandleRaw(context.Background(), "", []byte(`[]`))), CodeInvalidRequest)
}

func TestNotificationAndBatch(t *testing.T) {
	h := newTestHandler(t)

	assert.Nil(t, h.HandleRaw(context.Background(), "", []byte(`{"jsonrpc":"2.0","method":"`+MethodWalletNew+`","params":["bls"]}`)))

	raw := h.HandleRaw(context.Background(), "", []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"`+MethodWalletList+`","params":[]},
		{"jsonrpc":"2.0","method":"`+MethodWalletList+`","params":[]},
		{"jsonrpc":"2.0","id":"b","method":"nope"}
	]`))
	var batch []Response
	require.NoError(t, json.Unmarshal(raw, &batch))
	require.Len(t, batch, 2)

	var addrs []string
	require.NoError(t, json.Unmarshal(batch[0].Result, &addrs))
	assert.Len(t, addrs, 1)
	assert.Equal(t, `"b"`, string(batch[1].ID))
	requireCode(t, batch[1], CodeMethodNotFound)
}

func TestPermissions(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", "walletd", time.Hour)
	h := newTestHandler(t, WithAuth(jwtManager))

	token := func(level auth.Permission) string {
		tok, err := jwtManager.Generate("test", level)
		require.NoError(t, err)
		return tok
	}

	requireCode(t, call(t, h, "", MethodWalletList), CodeUnauthorized)
	requireCode(t, call(t, h, "not-a-jwt", MethodWalletList), CodeUnauthorized)
	requireCode(t, call(t, h, token(auth.PermRead), MethodWalletList), CodeForbidden)

	addr := resultOf[string](t, call(t, h, token(auth.PermWrite), MethodWalletNew, "secp256k1"))

	requireCode(t, call(t, h, token(auth.PermWrite), MethodWalletSign, addr, []byte("m")), CodeForbidden)
	resultOf[crypto.Signature](t, call(t, h, token(auth.PermSign), MethodWalletSign, addr, []byte("m")))

	requireCode(t, call(t, h, token(auth.PermSign), MethodWalletExport, addr), CodeForbidden)
	resultOf[keystore.KeyInfo](t, call(t, h, token(auth.PermAdmin), MethodWalletExport, addr))

	assert.Equal(t, "0", resultOf[string](t, call(t, h, token(auth.PermRead), MethodWalletBalance, addr)))
}

func TestMethodPermissionTable(t *testing.T) {
	h := newTestHandler(t)
	want := map[string]auth.Permission{
		MethodWalletBalance:        auth.PermRead,
		MethodWalletDefaultAddress: auth.PermRead,
		MethodWalletExport:         auth.PermAdmin,
		MethodWalletHas:            auth.PermWrite,
		MethodWalletImport:         auth.PermAdmin,
		MethodWalletList:           auth.PermWrite,
		MethodWalletNew:            auth.PermWrite,
		MethodWalletSetDefault:     auth.PermWrite,
		MethodWalletSign:           auth.PermSign,
		MethodWalletVerify:         auth.PermRead,
		MethodWalletDelete:         auth.PermWrite,
	}
	require.Len(t, h.methods, len(want))
	for name, perm := range want {
		assert.Equal(t, perm, h.methods[name].perm, name)
	}
}

func TestCancelledContext(t *testing.T) {
	h := newTestHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	raw := h.HandleRaw(ctx, "", []byte(`{"jsonrpc":"2.0","id":1,"method":"`+MethodWalletNew+`","params":["bls"]}`))
	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	requireCode(t, resp, CodeInternalError)

	assert.Empty(t, resultOf[[]string](t, call(t, h, "", MethodWalletList)))
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "abc", BearerToken("abc"))
	assert.Equal(t, "", BearerToken(""))
}
