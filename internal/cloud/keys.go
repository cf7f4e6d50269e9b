package cloud

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKeyMaterial is returned when the installation secret or private key cannot be decoded.
var ErrInvalidKeyMaterial = errors.New("invalid installation key material")

// InstallationKey identifies this app installation to the cloud API.
type InstallationKey struct {
	ID         string
	Secret     []byte
	PrivateKey *ecdsa.PrivateKey
}

// ParseInstallationKey decodes the base64 secret and the base64 DER (PKCS#8 or SEC1) EC private key.
func ParseInstallationKey(id, secretB64, privateKeyB64 string) (InstallationKey, error) {
	if strings.TrimSpace(id) == "" {
		return InstallationKey{}, fmt.Errorf("%w: empty installation id", ErrInvalidKeyMaterial)
	}
	secret, err := decodeB64(secretB64)
	if err != nil {
		return InstallationKey{}, fmt.Errorf("%w: secret: %v", ErrInvalidKeyMaterial, err)
	}
	if len(secret) == 0 {
		return InstallationKey{}, fmt.Errorf("%w: empty secret", ErrInvalidKeyMaterial)
	}
	der, err := decodeB64(privateKeyB64)
	if err != nil {
		return InstallationKey{}, fmt.Errorf("%w: private key: %v", ErrInvalidKeyMaterial, err)
	}
	pk, err := parseECKey(der)
	if err != nil {
		return InstallationKey{}, fmt.Errorf("%w: private key: %v", ErrInvalidKeyMaterial, err)
	}
	return InstallationKey{ID: id, Secret: secret, PrivateKey: pk}, nil
}

func decodeB64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func parseECKey(der []byte) (*ecdsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return ec, nil
	}
	return x509.ParseECPrivateKey(der)
}

// PublicKeyB64 is the base64 DER of the public half, sent during registration.
func (k InstallationKey) PublicKeyB64() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(&k.PrivateKey.PublicKey)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// RequestProof binds the installation id to its public key with the shared secret.
func (k InstallationKey) RequestProof() (string, error) {
	pub, err := k.PublicKeyB64()
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(pub))
	mac := hmac.New(sha256.New, k.Secret)
	mac.Write([]byte(k.ID + "." + base64.StdEncoding.EncodeToString(digest[:])))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Sign produces the per-request signature over id, nonce, timestamp and proof.
func (k InstallationKey) Sign(nonce, timestamp string) (string, error) {
	proof, err := k.RequestProof()
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256([]byte(strings.Join([]string{k.ID, nonce, timestamp, proof}, ".")))
	sig, err := ecdsa.SignASN1(rand.Reader, k.PrivateKey, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
