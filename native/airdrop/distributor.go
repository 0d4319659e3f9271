package airdrop

import (
	"errors"
	"fmt"
	"math/big"

	"dropshop/core/events"
	"dropshop/core/types"
	"dropshop/native/catalog"
)

var (
	errNilState = errors.New("airdrop distributor: state not configured")

	// ErrArrayLengthMismatch is returned when recipients and amounts (or
	// token ids) disagree in length; nothing is transferred.
	ErrArrayLengthMismatch = errors.New("airdrop: array length mismatch")
	// ErrEmptyBatch is returned when the recipient list is empty.
	ErrEmptyBatch = errors.New("airdrop: empty batch")
)

// distributorState is the transfer surface the distributor needs, plus
// snapshot-rollback so a failing transfer aborts the whole batch.
type distributorState interface {
	TokenTransfer(token, from, to [20]byte, amount *big.Int) error
	InventoryTransfer(nft [20]byte, tokenID uint64, from, to [20]byte, amount *big.Int, nftType catalog.NFTType) error
	WithSnapshot(fn func() error) error
}

// Distributor performs bulk token distributions: one sender, many
// recipients, one atomic batch. It carries no settlement invariants of its
// own beyond all-or-nothing execution.
type Distributor struct {
	state   distributorState
	emitter events.Emitter
}

// NewDistributor creates a distributor with a no-op emitter.
func NewDistributor() *Distributor {
	return &Distributor{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend.
func (d *Distributor) SetState(state distributorState) { d.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (d *Distributor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		d.emitter = events.NoopEmitter{}
		return
	}
	d.emitter = emitter
}

// DistributeERC20 pushes per-recipient amounts of an ERC20-style token from
// the sender to each recipient. The memo is carried on the emitted event for
// off-chain bookkeeping.
func (d *Distributor) DistributeERC20(sender, token [20]byte, recipients [][20]byte, amounts []*big.Int, memo string) error {
	if d == nil || d.state == nil {
		return errNilState
	}
	if len(recipients) == 0 {
		return ErrEmptyBatch
	}
	if len(recipients) != len(amounts) {
		return ErrArrayLengthMismatch
	}
	return d.state.WithSnapshot(func() error {
		for i, recipient := range recipients {
			amount := amounts[i]
			if amount == nil || amount.Sign() <= 0 {
				return fmt.Errorf("airdrop: amount %d must be positive", i)
			}
			if err := d.state.TokenTransfer(token, sender, recipient, amount); err != nil {
				return err
			}
		}
		d.emit(NewDistributedEvent("erc20", sender, token, len(recipients), memo))
		return nil
	})
}

// DistributeERC721 transfers n distinct token ids to n recipients.
func (d *Distributor) DistributeERC721(sender, token [20]byte, recipients [][20]byte, tokenIDs []uint64, memo string) error {
	if d == nil || d.state == nil {
		return errNilState
	}
	if len(recipients) == 0 {
		return ErrEmptyBatch
	}
	if len(recipients) != len(tokenIDs) {
		return ErrArrayLengthMismatch
	}
	return d.state.WithSnapshot(func() error {
		one := big.NewInt(1)
		for i, recipient := range recipients {
			if err := d.state.InventoryTransfer(token, tokenIDs[i], sender, recipient, one, catalog.NFTERC721); err != nil {
				return err
			}
		}
		d.emit(NewDistributedEvent("erc721", sender, token, len(recipients), memo))
		return nil
	})
}

// DistributeERC1155 transfers per-recipient amounts of a single token id.
func (d *Distributor) DistributeERC1155(sender, token [20]byte, tokenID uint64, recipients [][20]byte, amounts []*big.Int, memo string) error {
	if d == nil || d.state == nil {
		return errNilState
	}
	if len(recipients) == 0 {
		return ErrEmptyBatch
	}
	if len(recipients) != len(amounts) {
		return ErrArrayLengthMismatch
	}
	return d.state.WithSnapshot(func() error {
		for i, recipient := range recipients {
			amount := amounts[i]
			if amount == nil || amount.Sign() <= 0 {
				return fmt.Errorf("airdrop: amount %d must be positive", i)
			}
			if err := d.state.InventoryTransfer(token, tokenID, sender, recipient, amount, catalog.NFTERC1155); err != nil {
				return err
			}
		}
		d.emit(NewDistributedEvent("erc1155", sender, token, len(recipients), memo))
		return nil
	})
}

type airdropEvent struct {
	evt *types.Event
}

func (e airdropEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e airdropEvent) Event() *types.Event { return e.evt }

func (d *Distributor) emit(event *types.Event) {
	if d == nil || d.emitter == nil || event == nil {
		return
	}
	d.emitter.Emit(airdropEvent{evt: event})
}
