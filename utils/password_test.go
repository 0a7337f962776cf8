package utils

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("pw1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "pw1" {
		t.Fatalf("hash equals clear text")
	}
	if !h.Check(hash, "pw1") {
		t.Errorf("correct password rejected")
	}
	if h.Check(hash, "pw2") {
		t.Errorf("wrong password accepted")
	}
	if h.Check("", "pw1") {
		t.Errorf("empty hash must never match")
	}

	again, _ := h.Hash("pw1")
	if again == hash {
		t.Errorf("hashes must be salted")
	}

	// must not panic and must not be usable as a match
	h.Burn("pw1")
}

func TestNewPasswordHasherClampsCost(t *testing.T) {
	if h := NewPasswordHasher(1); h.cost != bcrypt.DefaultCost {
		t.Fatalf("cost = %d", h.cost)
	}
}
