// Package formance moves custodied funds on a Formance ledger.
package formance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/custody"
)

const defaultPrecision = 6

const numscriptTransfer = `vars {
  asset $asset
  number $amount
  account $source
  account $destination
  string $transfer_ref
}

send [$asset $amount] (
  source = $source
  destination = $destination
)

set_tx_meta("event_type", "settlement_transfer")
set_tx_meta("transfer_ref", $transfer_ref)
`

type Config struct {
	StackURL       string
	ClientID       string
	ClientSecret   string
	LedgerName     string
	CustodyAccount string
	// Precisions maps token symbols to their decimal precision.
	Precisions map[string]int
}

// Service is a custody.Transferer backed by a Formance Stack ledger.
type Service struct {
	client     *v3.Formance
	ledger     string
	custody    string
	precisions map[string]int
	log        *zap.Logger
}

var _ custody.Transferer = (*Service)(nil)

// NewService connects to the stack and creates the ledger if it does not exist.
func NewService(ctx context.Context, cfg Config, log *zap.Logger) (*Service, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = "settlement"
	}

	log.Info("connecting to formance stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	svc := &Service{
		client:     client,
		ledger:     cfg.LedgerName,
		custody:    cfg.CustodyAccount,
		precisions: cfg.Precisions,
		log:        log,
	}
	if err := svc.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}
	return svc, nil
}

func (s *Service) ensureLedger(ctx context.Context) error {
	_, err := s.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: s.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": "settlement",
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			s.log.Info("ledger already exists", zap.String("ledger", s.ledger))
			return nil
		}
		return err
	}
	s.log.Info("ledger created", zap.String("ledger", s.ledger))
	return nil
}

// maxPostings bounds how often one leg is posted again after its earlier
// postings were reverted by compensation.
const maxPostings = 16

// postingRef is the ledger reference of the n-th posting of a leg. The first
// posting uses the leg reference unchanged.
func postingRef(base string, n int) string {
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s:retry-%d", base, n)
}

// Transfer posts the leg under a reference derived from t.Reference. A live
// transaction already holding that reference is the same leg and is accepted
// as posted; a reverted one moves the leg to the next retry reference.
func (s *Service) Transfer(ctx context.Context, t custody.Transfer) (custody.Receipt, error) {
	base := t.Reference
	if base == "" {
		base = uuid.NewString()
	}

	for n := 0; n < maxPostings; n++ {
		ref := postingRef(base, n)
		err := s.post(ctx, t, ref)
		if err == nil {
			s.log.Info("transfer posted",
				zap.String("ref", ref),
				zap.String("asset", s.asset(t.Token)),
				zap.Int64("amount", t.Amount),
				zap.String("from", s.account(t.From)),
				zap.String("to", s.account(t.To)))
			return custody.Receipt{Transfer: t, ID: ref}, nil
		}
		if !isConflictError(err) {
			return custody.Receipt{}, fmt.Errorf("error posting transfer: %w", err)
		}

		tx, ferr := s.findByRef(ctx, ref)
		if ferr != nil {
			return custody.Receipt{}, fmt.Errorf("transfer %s conflicts: %w", ref, ferr)
		}
		if tx.Reverted {
			continue
		}
		if !s.matchesLeg(*tx, t) {
			return custody.Receipt{}, fmt.Errorf("reference %s already holds a different transfer", ref)
		}
		s.log.Info("transfer already posted", zap.String("ref", ref), zap.String("tx_id", tx.ID.String()))
		return custody.Receipt{Transfer: t, ID: ref}, nil
	}
	return custody.Receipt{}, fmt.Errorf("transfer %s reverted %d times", base, maxPostings)
}

func (s *Service) post(ctx context.Context, t custody.Transfer, ref string) error {
	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: s.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr(ref),
			Script: &shared.V2PostTransactionScript{
				Plain: numscriptTransfer,
				Vars: map[string]string{
					"asset":        s.asset(t.Token),
					"amount":       strconv.FormatInt(t.Amount, 10),
					"source":       s.account(t.From),
					"destination":  s.account(t.To),
					"transfer_ref": ref,
				},
			},
		},
	})
	return err
}

// matchesLeg reports whether tx moves exactly what t describes.
func (s *Service) matchesLeg(tx shared.V2Transaction, t custody.Transfer) bool {
	if len(tx.Postings) != 1 {
		return false
	}
	p := tx.Postings[0]
	return p.Asset == s.asset(t.Token) &&
		p.Source == s.account(t.From) &&
		p.Destination == s.account(t.To) &&
		p.Amount != nil && p.Amount.Cmp(big.NewInt(t.Amount)) == 0
}

// findByRef returns the transaction carrying the transfer_ref metadata.
func (s *Service) findByRef(ctx context.Context, ref string) (*shared.V2Transaction, error) {
	pageSize := int64(1)
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: &pageSize,
		RequestBody: map[string]any{
			"$match": map[string]any{
				"metadata[transfer_ref]": ref,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find transfer %s: %w", ref, err)
	}
	if len(resp.V2TransactionsCursorResponse.Cursor.Data) == 0 {
		return nil, fmt.Errorf("no transaction found with transfer_ref %s", ref)
	}
	return &resp.V2TransactionsCursorResponse.Cursor.Data[0], nil
}

// Reverse reverts the posted transaction found by its transfer_ref metadata.
func (s *Service) Reverse(ctx context.Context, r custody.Receipt) error {
	tx, err := s.findByRef(ctx, r.ID)
	if err != nil {
		return err
	}
	if tx.Reverted {
		return nil
	}

	_, err = s.client.Ledger.V2.RevertTransaction(ctx, operations.V2RevertTransactionRequest{
		Ledger:          s.ledger,
		ID:              tx.ID,
		AtEffectiveDate: ptrBool(true),
	})
	if err != nil {
		if isConflictError(err) || isAlreadyRevertedError(err) {
			return nil
		}
		return fmt.Errorf("failed to revert transfer %s: %w", r.ID, err)
	}

	s.log.Info("transfer reverted", zap.String("ref", r.ID), zap.String("tx_id", tx.ID.String()))
	return nil
}

// asset returns the Formance UMN notation, e.g. "USDC/6".
func (s *Service) asset(token string) string {
	p, ok := s.precisions[token]
	if !ok {
		p = defaultPrecision
	}
	return fmt.Sprintf("%s/%d", strings.ToUpper(token), p)
}

// account maps a settlement address onto a ledger account path.
func (s *Service) account(addr string) string {
	if addr == s.custody {
		return "platform:custody"
	}
	return "users:" + accountSegment(addr)
}

// accountSegment replaces characters Formance does not accept in an account
// segment; TON raw addresses carry a ':' between workchain and hash.
func accountSegment(addr string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, addr)
}

func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func isAlreadyRevertedError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumAlreadyRevert
}

func strPtr(s string) *string { return &s }
func ptrBool(v bool) *bool    { return &v }
