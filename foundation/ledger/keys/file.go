package keys

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const keyFilePerm = 0600

// Extension is the file extension used for key files.
const Extension = ".ed25519"

// keyFile represents the key file structure.
type keyFile struct {
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
}

// Save writes the keypair to the specified file, creating its folder.
func Save(path string, kp Keypair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	data, err := json.MarshalIndent(keyFile{PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling key: %w", err)
	}

	if err := os.WriteFile(path, data, keyFilePerm); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}

	return nil
}

// Load reads a keypair previously written by Save.
func Load(path string) (Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, fmt.Errorf("reading key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return Keypair{}, fmt.Errorf("parsing key file: %w", err)
	}

	if len(kf.PrivateKey) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("invalid private key size %d", len(kf.PrivateKey))
	}

	kp := fromSeed(ed25519.PrivateKey(kf.PrivateKey).Seed())
	if !kp.PublicKey.Equal(ed25519.PublicKey(kf.PublicKey)) {
		return Keypair{}, fmt.Errorf("public key does not match private key in %s", path)
	}

	return kp, nil
}
