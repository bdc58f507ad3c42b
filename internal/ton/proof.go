// Package ton authenticates callers with TON Connect proofs and moves TON
// for the custody backend.
package ton

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// ProofPrefix opens every signed ton_proof message.
	// https://docs.ton.org/develop/dapps/ton-connect/sign#checking-ton_proof-on-server-side
	ProofPrefix = "ton-proof-item-v2/"

	// ConnectPrefix precedes the message hash in the signed payload.
	ConnectPrefix = "ton-connect"

	DefaultMaxProofAge = 5 * time.Minute
)

// ProofData is the ton_proof reply of a TON Connect wallet.
type ProofData struct {
	// Address is the raw form "<workchain>:<hex hash>".
	Address   string `json:"address"`
	Network   string `json:"network"`    // "-239" mainnet, "-3" testnet
	PublicKey string `json:"public_key"` // hex
	Proof     Proof  `json:"proof"`
	StateInit string `json:"state_init,omitempty"` // base64 BOC
}

type Proof struct {
	Timestamp int64       `json:"timestamp"`
	Domain    ProofDomain `json:"domain"`
	Payload   string      `json:"payload"`   // server-issued nonce
	Signature string      `json:"signature"` // base64 or hex
}

type ProofDomain struct {
	LengthBytes int    `json:"lengthBytes"`
	Value       string `json:"value"`
}

// Verifier checks ton_proof signatures against a domain allow-list.
type Verifier struct {
	// AllowedDomains empty means any domain (dev mode).
	AllowedDomains []string
	MaxAge         time.Duration
	Now            func() time.Time
}

func NewVerifier(allowedDomains []string) *Verifier {
	return &Verifier{AllowedDomains: allowedDomains, MaxAge: DefaultMaxProofAge, Now: time.Now}
}

// Verify checks data and returns the caller's normalized raw address.
//
//	message = "ton-proof-item-v2/" ++ workchain(4 LE) ++ hash(32)
//	          ++ domain_len(4 LE) ++ domain ++ timestamp(8 LE) ++ payload
//	signed  = sha256(0xffff ++ "ton-connect" ++ sha256(message))
func (v *Verifier) Verify(data ProofData) (string, error) {
	workchain, hash, err := ParseRawAddress(data.Address)
	if err != nil {
		return "", err
	}
	proof := data.Proof

	now := v.Now()
	proofTime := time.Unix(proof.Timestamp, 0)
	if now.Sub(proofTime) > v.MaxAge {
		return "", fmt.Errorf("proof expired: %s old", now.Sub(proofTime).Round(time.Second))
	}
	if proofTime.After(now.Add(time.Minute)) {
		return "", fmt.Errorf("proof timestamp is in the future")
	}

	if !isDomainAllowed(proof.Domain.Value, v.AllowedDomains) {
		return "", fmt.Errorf("domain %q not in allowed list", proof.Domain.Value)
	}
	if proof.Domain.LengthBytes != len(proof.Domain.Value) {
		return "", fmt.Errorf("domain length %d does not match %q", proof.Domain.LengthBytes, proof.Domain.Value)
	}

	pubKey, err := hex.DecodeString(data.PublicKey)
	if err != nil {
		return "", fmt.Errorf("invalid public key hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid public key size: %d", len(pubKey))
	}

	sig, err := decodeSignature(proof.Signature)
	if err != nil {
		return "", err
	}

	digest := proofDigest(workchain, hash, proof)
	if !ed25519.Verify(pubKey, digest[:], sig) {
		return "", fmt.Errorf("invalid signature")
	}
	return FormatRawAddress(workchain, hash), nil
}

func proofDigest(workchain int32, hash []byte, proof Proof) [32]byte {
	message := []byte(ProofPrefix)
	message = binary.LittleEndian.AppendUint32(message, uint32(workchain))
	message = append(message, hash...)
	message = binary.LittleEndian.AppendUint32(message, uint32(proof.Domain.LengthBytes))
	message = append(message, proof.Domain.Value...)
	message = binary.LittleEndian.AppendUint64(message, uint64(proof.Timestamp))
	message = append(message, proof.Payload...)

	msgHash := sha256.Sum256(message)

	signed := []byte{0xff, 0xff}
	signed = append(signed, ConnectPrefix...)
	signed = append(signed, msgHash[:]...)
	return sha256.Sum256(signed)
}

func decodeSignature(s string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(sig) != ed25519.SignatureSize {
		if raw, hexErr := hex.DecodeString(s); hexErr == nil {
			sig, err = raw, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("invalid signature size: %d", len(sig))
	}
	return sig, nil
}

// ParseRawAddress parses "0:abcdef..." or "-1:abcdef..." into workchain and hash.
func ParseRawAddress(raw string) (int32, []byte, error) {
	wcPart, hashHex, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, nil, fmt.Errorf("invalid raw address format: %s", raw)
	}
	var wc int32
	if _, err := fmt.Sscanf(wcPart, "%d", &wc); err != nil {
		return 0, nil, fmt.Errorf("invalid raw address workchain: %s", raw)
	}
	hash, err := hex.DecodeString(hashHex)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid address hash hex: %w", err)
	}
	if len(hash) != 32 {
		return 0, nil, fmt.Errorf("address hash must be 32 bytes, got %d", len(hash))
	}
	return wc, hash, nil
}

// FormatRawAddress is the canonical lower-case raw form used as caller identity.
func FormatRawAddress(workchain int32, hash []byte) string {
	return fmt.Sprintf("%d:%s", workchain, hex.EncodeToString(hash))
}

func isDomainAllowed(domain string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, d := range allowed {
		if d == domain {
			return true
		}
	}
	return false
}
