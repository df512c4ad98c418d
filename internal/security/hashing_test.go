package security

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	code := []byte("4821")
	hash, err := h.Hash(code)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == string(code) {
		t.Fatal("Hash returned empty or plaintext")
	}
	if err := h.Compare(hash, code); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if err := h.Compare(hash, []byte("4822")); err != bcrypt.ErrMismatchedHashAndPassword {
		t.Errorf("Compare wrong code: want ErrMismatchedHashAndPassword, got %v", err)
	}
}

func TestHasher_CompareMalformedHash(t *testing.T) {
	if err := NewHasher(bcrypt.MinCost).Compare("not-a-hash", []byte("1234")); err == nil {
		t.Fatal("Compare against malformed hash should fail")
	}
}

func TestHasher_Cost(t *testing.T) {
	testCases := []struct {
		in, want int
	}{
		{12, 12},
		{0, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{40, bcrypt.MaxCost},
	}
	for _, tc := range testCases {
		if got := NewHasher(tc.in).Cost; got != tc.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tc.in, got, tc.want)
		}
	}
}
