package openpayments

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Identity is the client key material used to sign every request.
type Identity struct {
	WalletAddress string
	KeyID         string
	PrivateKey    ed25519.PrivateKey
}

// PublicKey returns the verification half of the signing key.
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.PrivateKey.Public().(ed25519.PublicKey)
}

// LoadIdentity builds an Identity from an inline key (PEM or base64-encoded
// PEM) or, when keyPEM is empty, from the file at keyPath.
func LoadIdentity(walletAddress, keyID, keyPath, keyPEM string) (*Identity, error) {
	if strings.TrimSpace(walletAddress) == "" {
		return nil, errors.New("openpayments: client wallet address is required")
	}
	if strings.TrimSpace(keyID) == "" {
		return nil, errors.New("openpayments: key id is required")
	}

	raw := []byte(keyPEM)
	if strings.TrimSpace(keyPEM) == "" {
		if keyPath == "" {
			return nil, errors.New("openpayments: private key path or PEM is required")
		}
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		raw = data
	}

	key, err := ParsePrivateKey(raw)
	if err != nil {
		return nil, err
	}
	return &Identity{
		WalletAddress: NormalizeWalletAddress(walletAddress),
		KeyID:         keyID,
		PrivateKey:    key,
	}, nil
}

// ParsePrivateKey decodes a PKCS#8 Ed25519 key.
func ParsePrivateKey(data []byte) (ed25519.PrivateKey, error) {
	text := strings.TrimSpace(string(data))
	if !strings.Contains(text, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
		text = string(decoded)
	}

	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, errors.New("decode private key: no PEM block found")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse private key: unsupported key type %T", parsed)
	}
	return key, nil
}

// MarshalPrivateKey encodes key as a PKCS#8 PEM block.
func MarshalPrivateKey(key ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// NormalizeWalletAddress turns a payment pointer ($host/path) into its https URL.
func NormalizeWalletAddress(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "$") {
		return "https://" + strings.TrimPrefix(id, "$")
	}
	return id
}
