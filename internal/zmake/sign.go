package zmake

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// getPrivateKey loads the Ed25519 private key for id from KeyDir. Keys are
// stored hex encoded; raw 64-byte files are accepted too.
func getPrivateKey(id string) (ed25519.PrivateKey, error) {
	keyPath := filepath.Join(KeyDir, id+".key")
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("private key not found at %s", keyPath)
	}

	trimmed := strings.TrimSpace(string(keyData))
	if len(trimmed) == 128 {
		decoded, err := hex.DecodeString(trimmed)
		if err == nil && len(decoded) == ed25519.PrivateKeySize {
			return ed25519.PrivateKey(decoded), nil
		}
	}
	if len(keyData) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(keyData), nil
	}
	return nil, fmt.Errorf("invalid private key format at %s (expected 64 bytes raw or 128 hex chars, got %d)", keyPath, len(trimmed))
}

// getPublicKey loads the Ed25519 public key for id from KeyDir.
func getPublicKey(id string) (ed25519.PublicKey, error) {
	keyPath := filepath.Join(KeyDir, id+".pub")
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("public key '%s' not found in keyring (%s)", id, keyPath)
	}

	trimmed := strings.TrimSpace(string(keyData))
	if len(trimmed) == 64 {
		decoded, err := hex.DecodeString(trimmed)
		if err == nil && len(decoded) == ed25519.PublicKeySize {
			return ed25519.PublicKey(decoded), nil
		}
	}
	if len(keyData) == ed25519.PublicKeySize {
		return ed25519.PublicKey(keyData), nil
	}
	return nil, fmt.Errorf("invalid public key format at %s", keyPath)
}

// GenerateKeyPair generates a new Ed25519 key pair and saves it under KeyDir
// as <id>.key (hex private, mode 0600) and <id>.pub (hex public, 0644).
func GenerateKeyPair(id string) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	if err := os.MkdirAll(KeyDir, 0o755); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	privPath := filepath.Join(KeyDir, id+".key")
	pubPath := filepath.Join(KeyDir, id+".pub")

	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(priv)), 0o600); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(pub)), 0o644); err != nil {
		return fmt.Errorf("failed to save public key: %w", err)
	}
	return nil
}

// SignArtifact writes a detached hex signature next to the artifact as
// <artifact>.sig, tagged with the key id as "keyid:sig".
func SignArtifact(artifactPath, keyID string) error {
	privateKey, err := getPrivateKey(keyID)
	if err != nil {
		return buildErr(ErrSigningFailed, filepath.Base(artifactPath), err)
	}

	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return buildErr(ErrSigningFailed, filepath.Base(artifactPath), fmt.Errorf("failed to read artifact: %w", err))
	}

	signature := ed25519.Sign(privateKey, data)
	sigData := fmt.Sprintf("%s:%s", keyID, hex.EncodeToString(signature))
	if err := os.WriteFile(artifactPath+".sig", []byte(sigData), 0o644); err != nil {
		return buildErr(ErrSigningFailed, filepath.Base(artifactPath), fmt.Errorf("failed to write signature: %w", err))
	}
	return nil
}

// VerifyArtifactSignature checks the detached signature for an artifact.
func VerifyArtifactSignature(artifactPath string) error {
	sigData, err := os.ReadFile(artifactPath + ".sig")
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}

	rawSig := strings.TrimSpace(string(sigData))
	keyID := activeKeyID
	sigHex := rawSig
	if strings.Contains(rawSig, ":") {
		parts := strings.SplitN(rawSig, ":", 2)
		keyID = parts[0]
		sigHex = parts[1]
	}

	signature, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("invalid signature format: %w", err)
	}

	publicKey, err := getPublicKey(keyID)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	if !ed25519.Verify(publicKey, data, signature) {
		return errors.New("signature verification failed")
	}
	return nil
}
