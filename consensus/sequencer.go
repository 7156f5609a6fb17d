// Package consensus implements single-authority block production. One
// sequencer orders pending transactions, executes them one at a time and
// signs the resulting block; anyone can check a block against its key.
package consensus

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tolelom/tolbook/config"
	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/events"
	"github.com/tolelom/tolbook/internal/metrics"
	"github.com/tolelom/tolbook/vm"
)

const defaultMaxBlockTxs = 500

// ErrNotSequencer is returned when the local key is not the configured sequencer.
var ErrNotSequencer = errors.New("consensus: local key is not the sequencer")

// Sequencer is the block producer.
type Sequencer struct {
	bc        *core.Blockchain
	state     core.State
	mempool   *core.Mempool
	exec      *vm.Executor
	emitter   *events.Emitter
	privKey   crypto.PrivateKey
	sequencer string // authorised producer pubkey hex
	maxTxs    int
	logger    *zap.Logger
	nowFn     func() int64
}

// New creates a Sequencer that signs with privKey. The authorised producer
// is cfg.Sequencer, or privKey's own public key when that is empty.
func New(
	cfg *config.Config,
	bc *core.Blockchain,
	state core.State,
	mempool *core.Mempool,
	exec *vm.Executor,
	emitter *events.Emitter,
	privKey crypto.PrivateKey,
	logger *zap.Logger,
) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	seq := cfg.Sequencer
	if seq == "" {
		seq = privKey.Public().Hex()
	}
	maxTxs := cfg.MaxBlockTxs
	if maxTxs <= 0 {
		maxTxs = defaultMaxBlockTxs
	}
	return &Sequencer{
		bc:        bc,
		state:     state,
		mempool:   mempool,
		exec:      exec,
		emitter:   emitter,
		privKey:   privKey,
		sequencer: seq,
		maxTxs:    maxTxs,
		logger:    logger.Named("sequencer"),
		nowFn:     func() int64 { return time.Now().UnixNano() },
	}
}

// SetNowFunc overrides the block clock (unix nanoseconds).
func (s *Sequencer) SetNowFunc(fn func() int64) {
	if fn != nil {
		s.nowFn = fn
	}
}

// IsSequencer reports whether this node may produce blocks.
func (s *Sequencer) IsSequencer() bool {
	return s.privKey.Public().Hex() == s.sequencer
}

// ProduceBlock executes pending transactions against the next block and
// commits it. Transactions that fail are reverted, left out of the block and
// dropped from the mempool. An empty mempool still yields a block, which
// advances block time.
func (s *Sequencer) ProduceBlock() (block *core.Block, err error) {
	defer func() {
		n := 0
		if block != nil {
			n = len(block.Transactions)
		}
		metrics.ObserveBlock(err, n)
		metrics.SetMempoolSize(s.mempool.Size())
	}()

	if !s.IsSequencer() {
		return nil, ErrNotSequencer
	}

	pending := s.mempool.Pending(s.maxTxs)

	tip := s.bc.Tip()
	prevHash := config.GenesisHash
	height := int64(1)
	ts := s.nowFn()
	if tip != nil {
		prevHash = tip.Hash
		height = tip.Header.Height + 1
		if ts < tip.Header.Timestamp {
			ts = tip.Header.Timestamp
		}
	}
	block = core.NewBlockAt(height, prevHash, s.sequencer, ts, nil)

	snap, err := s.state.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	var included []*core.Transaction
	processed := make([]string, 0, len(pending))
	for _, tx := range pending {
		processed = append(processed, tx.ID)
		if err := s.exec.ExecuteTx(block, tx); err != nil {
			s.logger.Info("tx rejected",
				zap.Int64("height", height), zap.String("tx", tx.ID),
				zap.String("type", string(tx.Type)), zap.Error(err))
			continue
		}
		included = append(included, tx)
	}
	block.Transactions = included
	block.Header.TxRoot = core.ComputeTxRoot(included)

	// Compute root from the write buffer BEFORE flushing so that if AddBlock
	// fails the state has not yet been persisted and the node stays consistent.
	block.Header.StateRoot = s.state.ComputeRoot()
	block.Sign(s.privKey)

	if err := s.bc.AddBlock(block); err != nil {
		if rerr := s.state.RevertToSnapshot(snap); rerr != nil {
			s.logger.Error("revert after failed append", zap.Error(rerr))
		}
		return nil, fmt.Errorf("add block: %w", err)
	}

	// Flush state only after the block is safely stored.
	if err := s.state.Commit(); err != nil {
		s.logger.Fatal("block stored but state commit failed",
			zap.Int64("height", block.Header.Height), zap.Error(err))
	}

	// Emit after Sign() so block.Hash is set correctly.
	if s.emitter != nil {
		s.emitter.Emit(events.Event{
			Type:        events.EventBlockCommit,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"hash": block.Hash, "txs": len(block.Transactions)},
		})
	}

	s.mempool.Remove(processed)
	s.logger.Debug("block produced",
		zap.Int64("height", block.Header.Height), zap.String("hash", block.Hash),
		zap.Int("txs", len(included)), zap.Int("rejected", len(processed)-len(included)))
	return block, nil
}

// VerifyBlock checks that block was signed by the sequencer and that its
// hash covers its header.
func (s *Sequencer) VerifyBlock(block *core.Block) error {
	if block.Header.Proposer != s.sequencer {
		return fmt.Errorf("wrong proposer: got %s want %s", block.Header.Proposer, s.sequencer)
	}
	if block.Hash != block.ComputeHash() {
		return errors.New("block hash does not match header")
	}
	if err := crypto.VerifyAddress(block.Header.Proposer, []byte(block.Hash), block.Signature); err != nil {
		return fmt.Errorf("block signature: %w", err)
	}
	return nil
}

// Run starts the block-production loop with the given interval. It blocks
// until done is closed.
func (s *Sequencer) Run(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := s.ProduceBlock(); err != nil {
				s.logger.Error("produce block", zap.Error(err))
			}
		}
	}
}
