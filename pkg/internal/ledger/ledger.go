package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Operations reported on confirmations.
const (
	OpCreate   = "create"
	OpPurchase = "purchase"
	OpCancel   = "cancel"
)

var (
	ErrReverted       = errors.New("transaction reverted")
	ErrConfirmTimeout = errors.New("transaction not mined in time")
	ErrUnknownTicket  = errors.New("unknown ticketed resource")
)

// Receipt identifies a created resource and the transaction that creates it.
// The resource id is known before the transaction is mined.
type Receipt struct {
	ResourceID string `json:"resource_id"`
	TxRef      string `json:"tx_ref"`
}

// Confirmation is the final outcome of a watched transaction. Err is nil
// once the transaction is mined successfully.
type Confirmation struct {
	TxRef string
	Op    string
	Block uint64
	Err   error
}

type ResourceRequest struct {
	Capacity uint64
	Price    decimal.Decimal
	Metadata map[string]string
}

// Ledger is the on-chain resource collaborator. Every transaction it sends
// is watched and reported on Confirmations exactly once.
type Ledger interface {
	CreateTicketedResource(ctx context.Context, req ResourceRequest) (Receipt, error)
	GetTicketBalance(ctx context.Context, resourceID string, holder string) (uint64, error)
	Purchase(ctx context.Context, resourceID string, quantity uint64) (string, error)
	Cancel(ctx context.Context, resourceID string) (string, error)
	Confirmations() <-chan Confirmation
	Close()
}

var (
	_ Ledger = (*EthLedger)(nil)
	_ Ledger = (*Memory)(nil)
)
