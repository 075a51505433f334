package sshd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrGenerateHostKey_Persisted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host_key")

	signer1, err := loadOrGenerateHostKey(path)
	if err != nil {
		t.Fatalf("first loadOrGenerateHostKey: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("host key file not created: %v", err)
	}

	signer2, err := loadOrGenerateHostKey(path)
	if err != nil {
		t.Fatalf("second loadOrGenerateHostKey: %v", err)
	}

	if string(signer1.PublicKey().Marshal()) != string(signer2.PublicKey().Marshal()) {
		t.Error("host key changed between loads — persistence is broken")
	}
}

func TestLoadOrGenerateHostKey_RestrictedPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "host_key")

	if _, err := loadOrGenerateHostKey(path); err != nil {
		t.Fatalf("loadOrGenerateHostKey: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat host key: %v", err)
	}
	if info.Mode()&0o077 != 0 {
		t.Errorf("host key file mode %o is too permissive (want 0600)", info.Mode())
	}
}
