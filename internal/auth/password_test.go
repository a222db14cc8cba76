package auth

import (
	"errors"
	"strings"
	"testing"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(4)
}

func TestHash_LooksLikeBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	hash, err := ps.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$2a$04$") {
		t.Errorf("Hash() = %q, want a $2a$04$ prefix", hash)
	}
}

func TestHash_SaltsEveryCall(t *testing.T) {
	ps := newTestPasswordService()

	a, _ := ps.Hash("same-password")
	b, _ := ps.Hash("same-password")
	if a == b {
		t.Error("two hashes of the same password must differ")
	}
}

func TestHash_LengthLimit(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", maxPasswordBytes)); err != nil {
		t.Errorf("Hash() of %d bytes error = %v", maxPasswordBytes, err)
	}
	if _, err := ps.Hash(strings.Repeat("a", maxPasswordBytes+1)); err == nil {
		t.Error("Hash() should reject passwords over the bcrypt limit")
	}
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, err := ps.Hash("s3cret-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		wantErr  bool
		mismatch bool
	}{
		{name: "correct password", hash: hash, password: "s3cret-password"},
		{name: "wrong password", hash: hash, password: "guess", wantErr: true, mismatch: true},
		{name: "empty password", hash: hash, password: "", wantErr: true, mismatch: true},
		{name: "github-only account", hash: "", password: "anything", wantErr: true, mismatch: true},
		{name: "garbage hash", hash: "not-a-bcrypt-hash", password: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.Verify(tt.hash, tt.password)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.mismatch && !errors.Is(err, ErrPasswordMismatch) {
				t.Errorf("Verify() error = %v, want ErrPasswordMismatch", err)
			}
		})
	}
}
