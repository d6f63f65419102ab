package auth

import (
	"bytes"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher()
	blob, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if len(blob) != saltLen+keyLen {
		t.Fatalf("blob length = %d, want %d", len(blob), saltLen+keyLen)
	}
	if !h.Verify("s3cret", blob) {
		t.Fatal("correct password rejected")
	}
	if h.Verify("wrong", blob) {
		t.Fatal("wrong password accepted")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := NewHasher()
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if bytes.Equal(a, b) {
		t.Fatal("two hashes of the same password are identical")
	}
	if !h.Verify("same", a) || !h.Verify("same", b) {
		t.Fatal("salted hashes do not both verify")
	}
}

func TestVerifyMalformedBlob(t *testing.T) {
	h := NewHasher()
	for _, blob := range [][]byte{nil, {}, make([]byte, 10), make([]byte, saltLen+keyLen-1), make([]byte, saltLen+keyLen+1)} {
		if h.Verify("anything", blob) {
			t.Fatalf("blob of length %d verified", len(blob))
		}
	}
}

func TestLowerIterationCountDoesNotVerify(t *testing.T) {
	h := NewHasher()
	blob, _ := h.Hash("pw")
	weak := &Hasher{Iterations: 1000}
	if weak.Verify("pw", blob) {
		t.Fatal("hash verified under a different work factor")
	}
}
