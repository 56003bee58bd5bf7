// Package signing issues and verifies Proof signatures: a compact EdDSA
// JWS whose payload is a cell's cell_id, with kid set to the signer's
// key id. It implements chain.Verifier so a Chain can be configured to
// enforce commit-gate rule 7 (signature verification) without knowing
// anything about key management itself.
package signing

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/decisiongraph/ledger/internal/cell"
)

// cellClaims is the minimal claim set embedded in a Proof signature: the
// cell_id being attested to, carried as the JWT subject.
type cellClaims struct {
	jwt.RegisteredClaims
}

// Signer issues and verifies Ed25519 (EdDSA) signatures over cell_id
// values. Keys are loaded from PEM files, or generated ephemerally when
// no paths are configured (development / unsigned-chain mode).
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	keyID      string
}

// NewSigner creates a Signer from PEM key files. If both paths are empty,
// an ephemeral key pair is generated — suitable for chains that never set
// Proof.SignatureRequired, or for local development.
func NewSigner(privateKeyPath, publicKeyPath, keyID string) (*Signer, error) {
	if privateKeyPath == "" && publicKeyPath == "" {
		slog.Warn("signing: no key files configured, generating an ephemeral key pair (not for production)")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("signing: generate key pair: %w", err)
		}
		return &Signer{privateKey: priv, publicKey: pub, keyID: keyID}, nil
	}

	privPEM, err := os.ReadFile(privateKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("signing: read private key: %w", err)
	}
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, fmt.Errorf("signing: decode private key PEM")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signing: parse private key: %w", err)
	}
	edPriv, ok := privKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing: private key is not Ed25519")
	}

	pubPEM, err := os.ReadFile(publicKeyPath) //nolint:gosec // paths come from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("signing: read public key: %w", err)
	}
	pubBlock, _ := pem.Decode(pubPEM)
	if pubBlock == nil {
		return nil, fmt.Errorf("signing: decode public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signing: parse public key: %w", err)
	}
	edPub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signing: public key is not Ed25519")
	}

	derivedPub := edPriv.Public().(ed25519.PublicKey)
	if !bytes.Equal(derivedPub, edPub) {
		return nil, fmt.Errorf("signing: public key does not match private key")
	}

	return &Signer{privateKey: edPriv, publicKey: edPub, keyID: keyID}, nil
}

// Sign produces a compact EdDSA JWS over cellID and returns the proof
// fields to attach: (signature, signerKeyID).
func (s *Signer) Sign(cellID string) (signature, signerKeyID string, err error) {
	claims := cellClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: cellID,
			Issuer:  "decision-ledger",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = s.keyID
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", "", fmt.Errorf("signing: sign cell_id: %w", err)
	}
	return signed, s.keyID, nil
}

// Verify implements chain.Verifier: it checks that c.Proof.Signature is a
// valid EdDSA JWS whose subject equals c.CellID and whose kid matches the
// signer's configured key id.
func (s *Signer) Verify(c cell.Cell) (bool, error) {
	if c.Proof.Signature == "" {
		return false, nil
	}
	token, err := jwt.ParseWithClaims(
		c.Proof.Signature,
		&cellClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("signing: unexpected signing method: %v", token.Header["alg"])
			}
			return s.publicKey, nil
		},
	)
	if err != nil {
		return false, nil //nolint:nilerr // an invalid signature is a verification failure, not a transient error
	}
	claims, ok := token.Claims.(*cellClaims)
	if !ok || !token.Valid {
		return false, nil
	}
	if claims.Subject != c.CellID {
		return false, nil
	}
	if kid, _ := token.Header["kid"].(string); kid != c.Proof.SignerKeyID {
		return false, nil
	}
	return true, nil
}

// PublicKeyID returns the key id this Signer signs and verifies under.
func (s *Signer) PublicKeyID() string { return s.keyID }
