package checkout

import (
	"errors"
	"fmt"
	"math/big"

	"dropshop/core/events"
	"dropshop/core/types"
	"dropshop/native/catalog"
)

var (
	errNilState     = errors.New("checkout batcher: state not configured")
	errNilDirectory = errors.New("checkout batcher: shop directory not configured")

	// ErrShopNotFound is returned when a cart entry names an unknown shop.
	ErrShopNotFound = errors.New("checkout: shop not found")
	// ErrPaymentMismatch is returned when a cart entry's product cannot be
	// paid with the batch's chosen payment token.
	ErrPaymentMismatch = errors.New("checkout: product rail incompatible with batch payment token")
	// ErrEmptyBatch is returned when the cart contains no entries.
	ErrEmptyBatch = errors.New("checkout: empty cart")
)

// CartEntry is one line of a multi-shop purchase. ID carries the product id
// (as a 256-bit value) or, when IsAffiliate is set, the affiliate request id
// within the target shop.
type CartEntry struct {
	Amount      *big.Int
	ID          *big.Int
	IsAffiliate bool
	Shop        [20]byte
}

// Batch is the full input of a cross-shop purchase. AuxA and AuxB are opaque
// approval payloads forwarded for future permit-style extensions; the core
// algorithm does not interpret them. A zero PaymentToken selects the native
// rail for the whole batch.
type Batch struct {
	AuxA         [][]byte
	AuxB         [][]byte
	Entries      []CartEntry
	PaymentToken [20]byte
	MinAmountOut *big.Int
}

// ShopDirectory resolves shop addresses to their engines.
type ShopDirectory interface {
	Shop(addr [20]byte) (*catalog.Engine, bool)
}

// batchState is the payment plumbing the batcher needs: moving the buyer's
// funds into the batcher's own account, granting per-shop allowances, and
// snapshot-rollback so a failed line unwinds the whole batch.
type batchState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	TokenPull(token, owner, spender [20]byte, amount *big.Int) error
	TokenApprove(token, owner, spender [20]byte, amount *big.Int) error
	WithSnapshot(fn func() error) error
}

// Batcher fans one buyer's cart out across multiple shops inside one atomic
// unit of work, funded by a single up-front pull for the chosen payment
// token.
type Batcher struct {
	address   [20]byte
	directory ShopDirectory
	state     batchState
	emitter   events.Emitter
}

// NewBatcher constructs a batcher operating from the given settlement
// account.
func NewBatcher(address [20]byte) *Batcher {
	return &Batcher{address: address, emitter: events.NoopEmitter{}}
}

// Address returns the batcher's settlement account.
func (b *Batcher) Address() [20]byte { return b.address }

// SetDirectory configures shop resolution.
func (b *Batcher) SetDirectory(directory ShopDirectory) { b.directory = directory }

// SetState configures the payment state backend.
func (b *Batcher) SetState(state batchState) { b.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (b *Batcher) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

type quotedEntry struct {
	entry     CartEntry
	engine    *catalog.Engine
	productID [32]byte
	requestID uint64
	gross     *big.Int
}

// Purchase executes the batch for the given buyer. value is the native amount
// the buyer commits when the batch pays in native coin; it is ignored on the
// token rail. Receipts are returned in entry order. Any line failure rolls
// back every effect of the batch.
func (b *Batcher) Purchase(buyer [20]byte, batch *Batch, value *big.Int) ([]*catalog.Receipt, error) {
	if b == nil || b.state == nil {
		return nil, errNilState
	}
	if b.directory == nil {
		return nil, errNilDirectory
	}
	if batch == nil || len(batch.Entries) == 0 {
		return nil, ErrEmptyBatch
	}
	native := batch.PaymentToken == ([20]byte{})

	var receipts []*catalog.Receipt
	err := b.state.WithSnapshot(func() error {
		quotes, total, err := b.quote(batch, native)
		if err != nil {
			return err
		}
		if batch.MinAmountOut != nil && batch.MinAmountOut.Sign() > 0 && total.Cmp(batch.MinAmountOut) < 0 {
			return catalog.ErrSlippage
		}

		// One pull for the whole batch; individual shops are then paid
		// from the batcher's own account.
		if native {
			if value == nil || value.Cmp(total) < 0 {
				return fmt.Errorf("%w: batch total %s", catalog.ErrInsufficientPayment, total)
			}
			if err := b.pullNative(buyer, total); err != nil {
				return err
			}
		} else {
			if err := b.state.TokenPull(batch.PaymentToken, buyer, b.address, total); err != nil {
				return fmt.Errorf("%w: %s", catalog.ErrInsufficientPayment, err)
			}
		}

		receipts = make([]*catalog.Receipt, 0, len(quotes))
		for _, q := range quotes {
			if !native {
				if err := b.state.TokenApprove(batch.PaymentToken, b.address, q.engine.Shop().Address, q.gross); err != nil {
					return err
				}
			}
			var receipt *catalog.Receipt
			var err error
			if q.entry.IsAffiliate {
				receipt, err = q.engine.PurchaseAffiliateFor(b.address, buyer, q.requestID, q.entry.Amount, q.gross, nil)
			} else {
				receipt, err = q.engine.PurchaseFor(b.address, buyer, q.productID, q.entry.Amount, q.gross, nil)
			}
			if err != nil {
				return err
			}
			receipts = append(receipts, receipt)
		}

		b.emit(NewBatchSettledEvent(buyer, batch, total))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipts, nil
}

// quote resolves every entry and sizes the single up-front pull.
func (b *Batcher) quote(batch *Batch, native bool) ([]quotedEntry, *big.Int, error) {
	quotes := make([]quotedEntry, 0, len(batch.Entries))
	total := big.NewInt(0)
	for i, entry := range batch.Entries {
		if entry.Amount == nil || entry.Amount.Sign() <= 0 {
			return nil, nil, fmt.Errorf("checkout: entry %d amount must be positive", i)
		}
		if entry.ID == nil || entry.ID.Sign() < 0 {
			return nil, nil, fmt.Errorf("checkout: entry %d id required", i)
		}
		engine, ok := b.directory.Shop(entry.Shop)
		if !ok {
			return nil, nil, ErrShopNotFound
		}
		q := quotedEntry{entry: entry, engine: engine}
		if entry.IsAffiliate {
			if !entry.ID.IsUint64() {
				return nil, nil, fmt.Errorf("checkout: entry %d request id out of range", i)
			}
			q.requestID = entry.ID.Uint64()
			req, err := engine.GetAffiliate(q.requestID)
			if err != nil {
				return nil, nil, err
			}
			q.productID = req.ProductID
		} else {
			entry.ID.FillBytes(q.productID[:])
		}
		gross, method, token, err := engine.Quote(q.productID, entry.Amount)
		if err != nil {
			return nil, nil, err
		}
		if native {
			if method == catalog.PayToken {
				return nil, nil, ErrPaymentMismatch
			}
		} else {
			if method != catalog.PayToken || token != batch.PaymentToken {
				return nil, nil, ErrPaymentMismatch
			}
		}
		q.gross = gross
		total.Add(total, gross)
		quotes = append(quotes, q)
	}
	return quotes, total, nil
}

func (b *Batcher) pullNative(buyer [20]byte, amount *big.Int) error {
	fromAcc, err := b.state.GetAccount(buyer[:])
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: native balance %s below %s", catalog.ErrInsufficientPayment, fromAcc.Balance, amount)
	}
	// Funds already sit where the settlement pays from; writing a debited
	// and a credited clone of one account would keep only the credit.
	if buyer == b.address {
		return nil
	}
	toAcc, err := b.state.GetAccount(b.address[:])
	if err != nil {
		return err
	}
	toAcc = types.EnsureAccount(toAcc)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := b.state.PutAccount(buyer[:], fromAcc); err != nil {
		return err
	}
	return b.state.PutAccount(b.address[:], toAcc)
}

type checkoutEvent struct {
	evt *types.Event
}

func (e checkoutEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e checkoutEvent) Event() *types.Event { return e.evt }

func (b *Batcher) emit(event *types.Event) {
	if b == nil || b.emitter == nil || event == nil {
		return
	}
	b.emitter.Emit(checkoutEvent{evt: event})
}
