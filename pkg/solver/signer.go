package solver

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/intentbridge/settlement/pkg/wire"
)

// Signer holds the solver's registered signing key and produces the
// (signature, public_key) pair the coordinator's SubmitSignature expects
// (§4.4, §4.7.1.b). The on-chain contract is the only signature verifier;
// this package never validates its own output (§4.4: "No cryptographic
// verification of the signature is performed here").
type Signer struct {
	key     *ecdsa.PrivateKey
	hubAddr wire.Address
}

// NewSigner parses signingKeyMaterial (hex-encoded ECDSA private key, the
// shape named by §6.4's solver.signing_key_material) and derives the
// solver's hub-chain address from it.
func NewSigner(signingKeyMaterial string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(signingKeyMaterial, "0x"))
	if err != nil {
		return nil, fmt.Errorf("solver: invalid signing key material: %w", err)
	}
	ethAddr := crypto.PubkeyToAddress(key.PublicKey)
	return &Signer{key: key, hubAddr: wire.AddressFromEVM([20]byte(ethAddr))}, nil
}

// HubAddr returns the solver's hub-chain address, used for draft signature
// submission and solver-registry lookups.
func (s *Signer) HubAddr() wire.Address { return s.hubAddr }

// Sign produces a 64-byte (r||s) hex-encoded signature over canonicalBytes
// plus the hex-encoded 32-byte X coordinate of the public key, matching §6.2's
// 128-hex-char/64-hex-char payload shapes. The chain-recovery byte produced
// by crypto.Sign is dropped: on-chain verification here works off an
// explicit public_key field rather than signature recovery.
func (s *Signer) Sign(canonicalBytes []byte) (signatureHex string, publicKeyHex string, err error) {
	digest := crypto.Keccak256(canonicalBytes)
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", "", fmt.Errorf("solver: sign: %w", err)
	}

	pub := crypto.FromECDSAPub(&s.key.PublicKey) // 65 bytes, uncompressed, leading 0x04
	return hex.EncodeToString(sig[:64]), hex.EncodeToString(pub[1:33]), nil
}
