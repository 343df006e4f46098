package openpayments

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletAddressValidate(t *testing.T) {
	valid := WalletAddress{
		ID:             "https://wallet.example/alice",
		AssetCode:      "USD",
		AssetScale:     2,
		AuthServer:     "https://auth.wallet.example",
		ResourceServer: "https://wallet.example/op",
	}
	require.NoError(t, valid.Validate())

	tests := map[string]func(w *WalletAddress){
		"relative id":          func(w *WalletAddress) { w.ID = "/alice" },
		"missing auth server":  func(w *WalletAddress) { w.AuthServer = "" },
		"bad resource server":  func(w *WalletAddress) { w.ResourceServer = "ftp://wallet.example" },
		"missing asset code":   func(w *WalletAddress) { w.AssetCode = " " },
		"negative asset scale": func(w *WalletAddress) { w.AssetScale = -1 },
		"asset scale too big":  func(w *WalletAddress) { w.AssetScale = 256 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			w := valid
			mutate(&w)
			assert.ErrorIs(t, w.Validate(), ErrInvalidResponse)
		})
	}
}

func TestGrantResponseValidate(t *testing.T) {
	assert.ErrorIs(t, GrantResponse{}.Validate(), ErrInvalidResponse)
	assert.ErrorIs(t, GrantResponse{AccessToken: &AccessToken{}}.Validate(), ErrInvalidResponse)
	assert.ErrorIs(t, GrantResponse{Continue: &Continue{URI: "https://auth.example/continue"}}.Validate(), ErrInvalidResponse)
	assert.ErrorIs(t, GrantResponse{
		Continue: &Continue{URI: "https://auth.example/continue", AccessToken: ContinueToken{Value: "c"}},
		Interact: &Interact{Redirect: "not a url"},
	}.Validate(), ErrInvalidResponse)

	pending := GrantResponse{
		Continue: &Continue{URI: "https://auth.example/continue", AccessToken: ContinueToken{Value: "c"}},
		Interact: &Interact{Redirect: "https://auth.example/interact/1"},
	}
	require.NoError(t, pending.Validate())
	assert.False(t, pending.Finalized())

	finalized := GrantResponse{AccessToken: &AccessToken{Value: "tok"}}
	require.NoError(t, finalized.Validate())
	assert.True(t, finalized.Finalized())
}

func TestQuoteValidateChecksAmounts(t *testing.T) {
	q := Quote{
		ID:            "https://wallet.example/quotes/1",
		DebitAmount:   Amount{Value: "10100", AssetCode: "USD", AssetScale: 2},
		ReceiveAmount: Amount{Value: "10000", AssetCode: "USD", AssetScale: 2},
	}
	require.NoError(t, q.Validate())

	q.DebitAmount.Value = "101.00"
	assert.ErrorIs(t, q.Validate(), ErrInvalidResponse)
}

func TestOutgoingPaymentStatus(t *testing.T) {
	debit := &Amount{Value: "100", AssetCode: "USD", AssetScale: 2}

	assert.Equal(t, StateCompleted, OutgoingPayment{State: StateCompleted}.Status())
	assert.Equal(t, StateFailed, OutgoingPayment{Failed: true}.Status())
	assert.Equal(t, StateCompleted, OutgoingPayment{DebitAmount: debit, SentAmount: debit}.Status())
	assert.Equal(t, StateSending, OutgoingPayment{DebitAmount: debit}.Status())

	p := OutgoingPayment{ID: "https://wallet.example/outgoing/1", State: "LOST"}
	assert.ErrorIs(t, p.Validate(), ErrInvalidResponse)
}

func TestParseError(t *testing.T) {
	nested := parseError("POST", "https://auth.example", 401, []byte(`{"error":{"code":"invalid_continuation","description":"used"}}`))
	assert.Equal(t, "invalid_continuation", nested.Code)
	assert.Equal(t, "used", nested.Description)

	flat := parseError("POST", "https://auth.example", 400, []byte(`{"error":"request_denied","error_description":"no"}`))
	assert.Equal(t, "request_denied", flat.Code)
	assert.Equal(t, "no", flat.Description)

	garbage := parseError("GET", "https://wallet.example", 502, []byte(`<html>`))
	assert.Equal(t, 502, garbage.StatusCode)
	assert.Contains(t, garbage.Error(), "status 502")
}

func TestParsePrivateKeyAcceptsPEMAndBase64(t *testing.T) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pemBytes, err := MarshalPrivateKey(key)
	require.NoError(t, err)

	fromPEM, err := ParsePrivateKey(pemBytes)
	require.NoError(t, err)
	assert.True(t, key.Equal(fromPEM))

	fromBase64, err := ParsePrivateKey([]byte(base64.StdEncoding.EncodeToString(pemBytes)))
	require.NoError(t, err)
	assert.True(t, key.Equal(fromBase64))

	_, err = ParsePrivateKey([]byte("not a key"))
	assert.Error(t, err)
}

func TestLoadIdentityNormalizesPointer(t *testing.T) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pemBytes, err := MarshalPrivateKey(key)
	require.NoError(t, err)

	id, err := LoadIdentity("$wallet.example/shop", "key-1", "", string(pemBytes))
	require.NoError(t, err)
	assert.Equal(t, "https://wallet.example/shop", id.WalletAddress)
	assert.Equal(t, "key-1", id.KeyID)

	_, err = LoadIdentity("https://wallet.example/shop", "key-1", "", "")
	assert.Error(t, err)
}

func TestSignatureRoundTrip(t *testing.T) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	id := &Identity{WalletAddress: "https://wallet.example/shop", KeyID: "key-1", PrivateKey: key}

	body := []byte(`{"walletAddress":"https://wallet.example/shop"}`)
	req, err := http.NewRequest(http.MethodPost, "http://rs.example/quotes", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "GNAP tok")
	signRequest(req, body, id, time.Unix(1700000000, 0))

	assert.Contains(t, req.Header.Get("Signature-Input"), `keyid="key-1"`)
	assert.Contains(t, req.Header.Get("Signature-Input"), `"content-digest"`)

	inbound, err := http.NewRequest(http.MethodPost, "/quotes", bytes.NewReader(body))
	require.NoError(t, err)
	inbound.Host = "rs.example"
	inbound.Header = req.Header.Clone()
	require.NoError(t, VerifyRequest(inbound, body, id.PublicKey()))

	tampered := append([]byte(nil), body...)
	tampered[5] = 'X'
	assert.ErrorIs(t, VerifyRequest(inbound, tampered, id.PublicKey()), ErrInvalidSignature)
}
