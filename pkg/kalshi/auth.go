package kalshi

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

// Signer produces the request signature the exchange verifies. The
// canonical message is timestamp + METHOD + path (path includes the sorted
// query string when present).
type Signer interface {
	Sign(method, pathWithQuery, timestamp string) (string, error)
}

// Ed25519Signer signs the raw canonical message directly.
type Ed25519Signer struct {
	key ed25519.PrivateKey
}

func NewEd25519Signer(key ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{key: key}
}

func (s *Ed25519Signer) Sign(method, pathWithQuery, timestamp string) (string, error) {
	message := []byte(timestamp + method + pathWithQuery)
	sig := ed25519.Sign(s.key, message)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// RSASigner signs a SHA-256 digest of the canonical message with
// PKCS#1 v1.5 padding, per the exchange's API key specification.
type RSASigner struct {
	key *rsa.PrivateKey
}

func NewRSASigner(key *rsa.PrivateKey) *RSASigner {
	return &RSASigner{key: key}
}

func (s *RSASigner) Sign(method, pathWithQuery, timestamp string) (string, error) {
	message := []byte(timestamp + method + pathWithQuery)
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("rsa sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// LoadSigner loads the private key from an inline base64-encoded PEM blob
// or a file path. Exactly one source must be provided; this is checked
// before any network activity so credential mistakes fail fast.
func LoadSigner(inlineBase64, keyPath string) (Signer, error) {
	var pemBytes []byte

	switch {
	case inlineBase64 != "" && keyPath != "":
		return nil, fmt.Errorf("both inline private key and key path configured; set exactly one")
	case inlineBase64 != "":
		decoded, err := base64.StdEncoding.DecodeString(inlineBase64)
		if err != nil {
			return nil, fmt.Errorf("decode inline private key: %w", err)
		}
		pemBytes = decoded
	case keyPath != "":
		data, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		pemBytes = data
	default:
		return nil, fmt.Errorf("no private key configured")
	}

	return signerFromPEM(pemBytes)
}

func signerFromPEM(pemBytes []byte) (Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block containing the private key")
	}

	// PKCS#8 first; older RSA keys ship as PKCS#1.
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		switch k := key.(type) {
		case ed25519.PrivateKey:
			return &Ed25519Signer{key: k}, nil
		case *rsa.PrivateKey:
			return &RSASigner{key: k}, nil
		default:
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return &RSASigner{key: key}, nil
}
