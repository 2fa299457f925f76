package crypto

import "testing"

func TestHashPassword_DeterministicOnSameInput(t *testing.T) {
	t.Parallel()

	h1 := HashPassword("p@ssw0rd")
	h2 := HashPassword("p@ssw0rd")

	if h1 == "" || h2 == "" {
		t.Fatalf("empty hash")
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic for same input")
	}
	if len(h1) != 64 {
		t.Fatalf("hex sha256 should be 64 chars, got %d", len(h1))
	}

	h3 := HashPassword("p@ssw0rd!")
	if h1 == h3 {
		t.Fatalf("hash should differ when password differs")
	}
}

func TestHashPassword_KnownVector(t *testing.T) {
	t.Parallel()

	// sha256("secret"), matches digests produced by existing user files.
	const want = "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b"
	if got := HashPassword("secret"); got != want {
		t.Fatalf("HashPassword(\"secret\")=%s, want %s", got, want)
	}
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	hash := HashPassword("correct horse battery staple")

	if !VerifyPassword("correct horse battery staple", hash) {
		t.Fatalf("VerifyPassword: expected true for correct password")
	}
	if VerifyPassword("wrong", hash) {
		t.Fatalf("VerifyPassword: expected false for wrong password")
	}
	if VerifyPassword("", hash) {
		t.Fatalf("VerifyPassword: expected false for empty password")
	}
}
