package chain

import (
	"context"

	"github.com/btcsuite/btcd/btcutil"
)

// HistoryEntry is one transaction touching a subscribed address.
type HistoryEntry struct {
	TxID   string
	Height int64
}

// TxInput is a spent output, identified by the address that owned it.
type TxInput struct {
	Address string
}

// TxOutput is a created output.
type TxOutput struct {
	Address string
	Value   btcutil.Amount
}

// Transaction is the subset of a transaction the watcher needs.
type Transaction struct {
	TxID    string
	Inputs  []TxInput
	Outputs []TxOutput
}

// Client is the address subscription protocol of the blockchain service.
//
// notify is invoked from the client's own goroutine whenever the status of a
// subscribed fingerprint changes; implementations must not block on it.
type Client interface {
	Subscribe(ctx context.Context, fingerprints []string, notify func(fingerprint string)) error
	Unsubscribe(ctx context.Context, fingerprints []string) error
	History(ctx context.Context, fingerprint string) ([]HistoryEntry, error)
	Transaction(ctx context.Context, txid string) (*Transaction, error)
}

// Fingerprinter maps an address to its subscription fingerprint.
type Fingerprinter interface {
	Fingerprint(address string) (string, error)
}
