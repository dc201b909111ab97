package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"
)

type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Watcher polls receipts of sent transactions and reports each of them once,
// in whatever order they are mined.
type Watcher struct {
	source   ReceiptSource
	interval time.Duration
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	out    chan Confirmation
}

func NewWatcher(source ReceiptSource, interval, timeout time.Duration) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		source:   source,
		interval: interval,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
		out:      make(chan Confirmation, 256),
	}
}

func (w *Watcher) Confirmations() <-chan Confirmation {
	return w.out
}

func (w *Watcher) Watch(txRef string, op string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		conf := w.await(txRef, op)
		select {
		case w.out <- conf:
		case <-w.ctx.Done():
		}
	}()
}

func (w *Watcher) await(txRef string, op string) Confirmation {
	conf := Confirmation{TxRef: txRef, Op: op}
	hash := common.HexToHash(txRef)
	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		receipt, err := w.source.TransactionReceipt(w.ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.BlockNumber != nil {
				conf.Block = receipt.BlockNumber.Uint64()
			}
			if receipt.Status != types.ReceiptStatusSuccessful {
				conf.Err = ErrReverted
			}
			return conf
		case err != nil && !errors.Is(err, ethereum.NotFound):
			log.Warn().Err(err).Str("tx", txRef).Msg("Unable to fetch transaction receipt, will retry...")
		}

		select {
		case <-ticker.C:
		case <-deadline.C:
			conf.Err = ErrConfirmTimeout
			return conf
		case <-w.ctx.Done():
			conf.Err = w.ctx.Err()
			return conf
		}
	}
}

// Close stops every pending watch, their confirmations are dropped.
func (w *Watcher) Close() {
	w.cancel()
	w.wg.Wait()
}
