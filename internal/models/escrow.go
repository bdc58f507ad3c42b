package models

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
)

type EscrowStatus string

// Escrow statuses
const (
	EscrowStatusCreated  EscrowStatus = "created"
	EscrowStatusFunded   EscrowStatus = "funded"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
	EscrowStatusDisputed EscrowStatus = "disputed"
)

// Valid escrow transitions: from -> []to.
// Disputed only leaves through resolve.
var ValidEscrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusCreated:  {EscrowStatusFunded},
	EscrowStatusFunded:   {EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusDisputed},
	EscrowStatusDisputed: {EscrowStatusReleased, EscrowStatusRefunded},
	EscrowStatusReleased: {},
	EscrowStatusRefunded: {},
}

func (s EscrowStatus) CanTransition(to EscrowStatus) bool {
	for _, allowed := range ValidEscrowTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s EscrowStatus) IsTerminal() bool {
	next, ok := ValidEscrowTransitions[s]
	return ok && len(next) == 0
}

// Resolution is the arbiter's ruling on a disputed escrow.
type Resolution string

const (
	ResolutionRelease Resolution = "release"
	ResolutionRefund  Resolution = "refund"
)

func (r Resolution) Valid() bool {
	return r == ResolutionRelease || r == ResolutionRefund
}

// EscrowID is the opaque 32-byte escrow identity, hex encoded on the wire.
type EscrowID [32]byte

func (id EscrowID) String() string {
	return hex.EncodeToString(id[:])
}

func (id EscrowID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *EscrowID) UnmarshalText(text []byte) error {
	parsed, err := ParseEscrowID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func ParseEscrowID(s string) (EscrowID, error) {
	var id EscrowID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: escrow id is not hex: %v", ErrInvalidInput, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("%w: escrow id must be %d bytes, got %d", ErrInvalidInput, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// NewEscrowID derives a deterministic id from the escrow sequence number and
// its terms, so replaying the same call sequence yields the same ids.
func NewEscrowID(seq uint32, depositor, beneficiary, arbiter string, amount int64, token string) EscrowID {
	h := sha256.New()
	h.Write([]byte("escrow"))
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], seq)
	h.Write(buf[:4])
	for _, part := range []string{depositor, beneficiary, arbiter, token} {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(part)))
		h.Write(buf[:4])
		h.Write([]byte(part))
	}
	binary.BigEndian.PutUint64(buf[:], uint64(amount))
	h.Write(buf[:])

	var id EscrowID
	copy(id[:], h.Sum(nil))
	return id
}

type Escrow struct {
	ID            EscrowID     `json:"id"`
	Depositor     string       `json:"depositor"`
	Beneficiary   string       `json:"beneficiary"`
	Arbiter       string       `json:"arbiter"`
	Amount        int64        `json:"amount"`
	Token         string       `json:"token"`
	Status        EscrowStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	FundedAt      *time.Time   `json:"funded_at,omitempty"`
	SettledAt     *time.Time   `json:"settled_at,omitempty"`
	DisputeReason *string      `json:"dispute_reason,omitempty"`
	Resolution    *Resolution  `json:"resolution,omitempty"` // set when a dispute was resolved
}

func (e *Escrow) Parties() Parties {
	return Parties{Depositor: e.Depositor, Beneficiary: e.Beneficiary, Arbiter: e.Arbiter}
}
