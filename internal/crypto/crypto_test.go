package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestDeriveKeyIsDeterministic(t *testing.T) {
	a, err := DeriveKey("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := DeriveKey("hunter2")
	c, _ := DeriveKey("hunter3")
	if *a != *b {
		t.Fatal("same passphrase produced different keys")
	}
	if *a == *c {
		t.Fatal("different passphrases produced the same key")
	}
}

func TestDeriveKeyEmptyPassphrase(t *testing.T) {
	k, err := DeriveKey("")
	if err != nil || k != nil {
		t.Fatalf("got %v, %v; want nil key", k, err)
	}
}

func TestSealOpen(t *testing.T) {
	key, _ := DeriveKey("passphrase")
	msg := []byte(`{"records":["secret"]}`)

	sealed, err := Seal(msg, key)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(sealed, []byte("secret")) {
		t.Fatal("plaintext visible in sealed payload")
	}
	plain, err := Open(sealed, key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plain, msg) {
		t.Fatalf("got %q, want %q", plain, msg)
	}
}

func TestOpenWrongKey(t *testing.T) {
	key, _ := DeriveKey("right")
	wrong, _ := DeriveKey("wrong")
	sealed, _ := Seal([]byte("data"), key)
	if _, err := Open(sealed, wrong); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("got %v, want ErrDecrypt", err)
	}
}

func TestOpenTruncated(t *testing.T) {
	key, _ := DeriveKey("k")
	if _, err := Open(make([]byte, 10), key); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}
