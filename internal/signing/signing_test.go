package signing

import (
	"testing"

	"github.com/decisiongraph/ledger/internal/cell"
)

func TestSignAndVerify_RoundTrip(t *testing.T) {
	s, err := NewSigner("", "", "key-1")
	if err != nil {
		t.Fatalf("unexpected error creating signer: %v", err)
	}

	sig, kid, err := s.Sign("abc123")
	if err != nil {
		t.Fatalf("unexpected error signing: %v", err)
	}
	if kid != "key-1" {
		t.Fatalf("expected kid key-1, got %q", kid)
	}

	c := cell.Cell{CellID: "abc123", Proof: cell.Proof{Signature: sig, SignerKeyID: kid, SignatureRequired: true}}
	ok, err := s.Verify(c)
	if err != nil {
		t.Fatalf("unexpected error verifying: %v", err)
	}
	if !ok {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerify_RejectsMismatchedCellID(t *testing.T) {
	s, err := NewSigner("", "", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig, kid, err := s.Sign("original-id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := cell.Cell{CellID: "tampered-id", Proof: cell.Proof{Signature: sig, SignerKeyID: kid}}
	ok, err := s.Verify(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a signature over a different cell_id to fail verification")
	}
}

func TestVerify_RejectsForeignKey(t *testing.T) {
	s1, err := NewSigner("", "", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := NewSigner("", "", "key-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig, kid, err := s1.Sign("abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := cell.Cell{CellID: "abc123", Proof: cell.Proof{Signature: sig, SignerKeyID: kid}}
	ok, err := s2.Verify(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected a signature from a different key pair to fail verification")
	}
}

func TestVerify_EmptySignatureFails(t *testing.T) {
	s, err := NewSigner("", "", "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := s.Verify(cell.Cell{CellID: "abc123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected an empty signature to fail verification")
	}
}
