package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	blob, err := EncryptKey(key.String(), "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got.String() != key.String() {
		t.Error("decrypted key does not match original")
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("expected decryption with wrong password to fail")
	}
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	if _, err := EncryptKey("not-base58!", "pw"); err == nil {
		t.Error("expected invalid key to be rejected")
	}
	key := solana.NewWallet().PrivateKey
	if _, err := EncryptKey(key.String(), ""); err == nil {
		t.Error("expected empty password to be rejected")
	}
}

func TestLoadKeyFromFile(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	blob, err := EncryptKey(key.String(), "pw")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	path := filepath.Join(t.TempDir(), "authority.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if got.String() != key.String() {
		t.Error("loaded key does not match original")
	}

	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Error("expected LoadKey with no source to fail")
	}
}
