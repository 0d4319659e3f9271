package catalog

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"dropshop/core/events"
	"dropshop/core/types"
)

var (
	errNilState   = errors.New("catalog engine: state not configured")
	errNilOracle  = errors.New("catalog engine: price source not configured")
	errNilProduct = errors.New("catalog engine: nil product definition")
)

// engineState is the storage surface the shop engine operates against. The
// concrete implementation lives in the state package; tests provide mocks.
type engineState interface {
	ProductPut(*Product) error
	ProductGet(id [32]byte) (*Product, bool)
	BeneficiaryAppend(*Beneficiary) (uint64, error)
	BeneficiaryGet(id uint64) (*Beneficiary, bool)
	AffiliateAppend(*AffiliateRequest) (uint64, error)
	AffiliatePut(id uint64, req *AffiliateRequest) error
	AffiliateGet(id uint64) (*AffiliateRequest, bool)
	AffiliateLookup(publisher [20]byte, productID [32]byte) (uint64, bool)
	AffiliateCount() uint64
	NullifierSpent(nullifier [32]byte) (bool, error)
	NullifierSpend(nullifier [32]byte) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	TokenTransfer(token, from, to [20]byte, amount *big.Int) error
	TokenPull(token, owner, spender [20]byte, amount *big.Int) error
	InventoryMint(nft [20]byte, tokenID uint64, to [20]byte, amount *big.Int, nftType NFTType) error
	InventoryTransfer(nft [20]byte, tokenID uint64, from, to [20]byte, amount *big.Int, nftType NFTType) error
}

// PriceSource converts a USD-cent amount into native wei. Implementations
// must reject stale oracle readings.
type PriceSource interface {
	NativeAmount(cents *big.Int) (*big.Int, error)
}

// Receipt summarises a settled purchase.
type Receipt struct {
	ProductID [32]byte
	Quantity  *big.Int
	Gross     *big.Int
	Method    PaymentMethod
	Split     *Split
	Affiliate [20]byte
}

type catalogEvent struct {
	evt *types.Event
}

func (e catalogEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e catalogEvent) Event() *types.Event { return e.evt }

// Engine is one marketplace instance: it owns a product registry, a
// beneficiary ledger, an affiliate request arena and a nullifier set, and
// settles purchases against the shared payment and inventory state.
type Engine struct {
	shop    ShopInfo
	state   engineState
	oracle  PriceSource
	emitter events.Emitter
	params  Params
	nowFn   func() int64
}

// NewEngine creates a shop engine with a no-op emitter. Callers wire state,
// oracle and params before use.
func NewEngine(shop ShopInfo) *Engine {
	return &Engine{
		shop:    shop,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Shop returns the engine's shop identity and metadata.
func (e *Engine) Shop() ShopInfo { return e.shop }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle configures the price source used for USD-denominated products.
func (e *Engine) SetOracle(oracle PriceSource) { e.oracle = oracle }

// SetParams installs the platform parameters read at settlement time.
func (e *Engine) SetParams(params Params) error {
	sanitized, err := SanitizeParams(params)
	if err != nil {
		return err
	}
	e.params = sanitized
	return nil
}

// SetManager rotates the claim-manager key. Owner-gated.
func (e *Engine) SetManager(caller, manager [20]byte) error {
	if caller != e.shop.Owner {
		return ErrUnauthorized
	}
	e.shop.Manager = manager
	return nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(catalogEvent{evt: event})
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) transferNative(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("catalog: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: native balance %s below %s", ErrInsufficientPayment, fromAcc.Balance, amt)
	}
	// A self-transfer settles in place: writing a debited and a credited
	// clone of the same account would keep only the credit.
	if from == to {
		return nil
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc = types.EnsureAccount(toAcc)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// --- Product registry ---

// RegisterProduct registers (or re-registers) a product for sale. Producer
// only. Inventory is minted on the external token ledger and credited to the
// shop; re-registering the same (nftAddress, tokenId) compounds the remaining
// amount while overwriting price, payment terms and beneficiary references.
// Splits that could never settle are rejected here rather than at purchase
// time.
func (e *Engine) RegisterProduct(caller [20]byte, def *ProductDefinition) (*Product, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if def == nil {
		return nil, errNilProduct
	}
	if caller != e.shop.Owner {
		return nil, ErrUnauthorized
	}
	amount := cloneBigInt(def.Amount)
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("catalog: registration amount must be positive")
	}

	percentageSum := uint64(e.params.FeeBps) + uint64(def.AffiliateBps)
	ids := make([]uint64, 0, len(def.Beneficiaries))
	sanitized := make([]*Beneficiary, 0, len(def.Beneficiaries))
	for _, b := range def.Beneficiaries {
		clean, err := SanitizeBeneficiary(b)
		if err != nil {
			return nil, err
		}
		if clean.IsPercentage {
			percentageSum += clean.Value.Uint64()
		}
		sanitized = append(sanitized, clean)
	}
	if percentageSum > BasisPoints {
		return nil, ErrOversubscribedSplit
	}
	for _, clean := range sanitized {
		id, err := e.state.BeneficiaryAppend(clean)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	id := ProductID(def.NFTAddress, def.TokenID)
	product := &Product{
		ID:             id,
		TokenID:        def.TokenID,
		NFTAddress:     def.NFTAddress,
		NFTType:        def.NFTType,
		ProductType:    def.ProductType,
		Amount:         amount,
		Price:          cloneBigInt(def.Price),
		PaymentMethod:  def.PaymentMethod,
		PaymentToken:   def.PaymentToken,
		AffiliateBps:   def.AffiliateBps,
		BeneficiaryIDs: ids,
	}
	if existing, ok := e.state.ProductGet(id); ok {
		product.Amount = new(big.Int).Add(existing.Amount, amount)
	}
	clean, err := SanitizeProduct(product)
	if err != nil {
		return nil, err
	}
	if err := e.state.InventoryMint(def.NFTAddress, def.TokenID, e.shop.Address, amount, def.NFTType); err != nil {
		return nil, err
	}
	if err := e.state.ProductPut(clean); err != nil {
		return nil, err
	}
	e.emit(NewProductRegisteredEvent(e.shop.Address, clean, amount))
	return clean.Clone(), nil
}

// GetProduct returns the stored product for the given id.
func (e *Engine) GetProduct(id [32]byte) (*Product, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	product, ok := e.state.ProductGet(id)
	if !ok {
		return nil, ErrProductNotFound
	}
	return product.Clone(), nil
}

// GetBeneficiary returns the beneficiary stored under the given id.
func (e *Engine) GetBeneficiary(id uint64) (*Beneficiary, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	ben, ok := e.state.BeneficiaryGet(id)
	if !ok {
		return nil, ErrBeneficiaryNotFound
	}
	return ben.Clone(), nil
}

// --- Affiliate workflow ---

// RequestAffiliate opens a publisher's request against a product. A publisher
// holds at most one request per product regardless of its confirmation state.
func (e *Engine) RequestAffiliate(publisher [20]byte, productID [32]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if _, ok := e.state.ProductGet(productID); !ok {
		return 0, ErrProductNotFound
	}
	if _, ok := e.state.AffiliateLookup(publisher, productID); ok {
		return 0, ErrAlreadyRequested
	}
	req := &AffiliateRequest{Publisher: publisher, ProductID: productID}
	id, err := e.state.AffiliateAppend(req)
	if err != nil {
		return 0, err
	}
	e.emit(NewAffiliateRequestedEvent(e.shop.Address, id, req))
	return id, nil
}

// ApproveRequest confirms an affiliate request. Producer only; idempotent.
func (e *Engine) ApproveRequest(caller [20]byte, id uint64) error {
	return e.setAffiliateConfirmed(caller, id, true)
}

// DisapproveRequest revokes a previously confirmed request. The record stays
// visible but unconfirmed. Producer only; idempotent.
func (e *Engine) DisapproveRequest(caller [20]byte, id uint64) error {
	return e.setAffiliateConfirmed(caller, id, false)
}

func (e *Engine) setAffiliateConfirmed(caller [20]byte, id uint64, confirmed bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != e.shop.Owner {
		return ErrUnauthorized
	}
	req, ok := e.state.AffiliateGet(id)
	if !ok {
		return ErrRequestNotFound
	}
	if req.Confirmed == confirmed {
		return nil
	}
	req.Confirmed = confirmed
	if err := e.state.AffiliatePut(id, req); err != nil {
		return err
	}
	if confirmed {
		e.emit(NewAffiliateApprovedEvent(e.shop.Address, id, req))
	} else {
		e.emit(NewAffiliateDisapprovedEvent(e.shop.Address, id, req))
	}
	return nil
}

// GetAffiliate returns the request stored under the given id.
func (e *Engine) GetAffiliate(id uint64) (*AffiliateRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok := e.state.AffiliateGet(id)
	if !ok {
		return nil, ErrRequestNotFound
	}
	return req.Clone(), nil
}

// AffiliateRequestCount reports the length of the request arena.
func (e *Engine) AffiliateRequestCount() uint64 {
	if e == nil || e.state == nil {
		return 0
	}
	return e.state.AffiliateCount()
}

// --- Purchase / settlement ---

// Quote computes the gross amount a purchase of qty units would settle for,
// in the product's rail currency (native wei for USD-priced products). Used
// by the checkout batcher to size its single up-front pull.
func (e *Engine) Quote(productID [32]byte, qty *big.Int) (*big.Int, PaymentMethod, [20]byte, error) {
	if e == nil || e.state == nil {
		return nil, 0, [20]byte{}, errNilState
	}
	product, ok := e.state.ProductGet(productID)
	if !ok {
		return nil, 0, [20]byte{}, ErrProductNotFound
	}
	quantity := cloneBigInt(qty)
	if quantity.Sign() <= 0 {
		return nil, 0, [20]byte{}, fmt.Errorf("catalog: quantity must be positive")
	}
	gross, err := e.grossFor(product, quantity)
	if err != nil {
		return nil, 0, [20]byte{}, err
	}
	return gross, product.PaymentMethod, product.PaymentToken, nil
}

func (e *Engine) grossFor(product *Product, qty *big.Int) (*big.Int, error) {
	unit := new(big.Int).Mul(product.Price, qty)
	if product.PaymentMethod != PayUSD {
		return unit, nil
	}
	if e.oracle == nil {
		return nil, errNilOracle
	}
	wei, err := e.oracle.NativeAmount(unit)
	if err != nil {
		return nil, err
	}
	return wei, nil
}

// Purchase settles a direct (non-affiliate) purchase where the buyer both
// pays and receives the goods. value caps what the buyer is willing to spend
// on the native rails; minAmountOut bounds the oracle conversion for
// USD-priced products.
func (e *Engine) Purchase(buyer [20]byte, productID [32]byte, qty, value, minAmountOut *big.Int) (*Receipt, error) {
	return e.purchase(buyer, buyer, productID, nil, qty, value, minAmountOut)
}

// PurchaseFor settles a purchase paid by payer with goods delivered to
// recipient. The checkout batcher pays from its own account after pulling the
// batch total from the buyer once.
func (e *Engine) PurchaseFor(payer, recipient [20]byte, productID [32]byte, qty, value, minAmountOut *big.Int) (*Receipt, error) {
	return e.purchase(payer, recipient, productID, nil, qty, value, minAmountOut)
}

// PurchaseAffiliate settles a purchase referred through an affiliate request.
// An unconfirmed request does not fail the purchase; it settles with a zero
// affiliate share.
func (e *Engine) PurchaseAffiliate(buyer [20]byte, requestID uint64, qty, value, minAmountOut *big.Int) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok := e.state.AffiliateGet(requestID)
	if !ok {
		return nil, ErrRequestNotFound
	}
	return e.purchase(buyer, buyer, req.ProductID, req, qty, value, minAmountOut)
}

// PurchaseAffiliateFor is the payer/recipient split variant of
// PurchaseAffiliate used by the checkout batcher.
func (e *Engine) PurchaseAffiliateFor(payer, recipient [20]byte, requestID uint64, qty, value, minAmountOut *big.Int) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, ok := e.state.AffiliateGet(requestID)
	if !ok {
		return nil, ErrRequestNotFound
	}
	return e.purchase(payer, recipient, req.ProductID, req, qty, value, minAmountOut)
}

func (e *Engine) purchase(payer, recipient [20]byte, productID [32]byte, affiliate *AffiliateRequest, qty, value, minAmountOut *big.Int) (*Receipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	product, ok := e.state.ProductGet(productID)
	if !ok {
		return nil, ErrProductNotFound
	}
	quantity := cloneBigInt(qty)
	if quantity.Sign() <= 0 {
		return nil, fmt.Errorf("catalog: quantity must be positive")
	}
	if product.Amount.Cmp(quantity) < 0 {
		return nil, ErrInsufficientInventory
	}

	gross, err := e.grossFor(product, quantity)
	if err != nil {
		return nil, err
	}
	if product.PaymentMethod == PayUSD && minAmountOut != nil && minAmountOut.Sign() > 0 && gross.Cmp(minAmountOut) < 0 {
		return nil, ErrSlippage
	}

	affiliateConfirmed := affiliate != nil && affiliate.Confirmed
	beneficiaries := make([]*Beneficiary, 0, len(product.BeneficiaryIDs))
	for _, id := range product.BeneficiaryIDs {
		ben, ok := e.state.BeneficiaryGet(id)
		if !ok {
			return nil, ErrBeneficiaryNotFound
		}
		beneficiaries = append(beneficiaries, ben)
	}
	split, err := ComputeSplit(gross, e.params, product.AffiliateBps, affiliateConfirmed, beneficiaries)
	if err != nil {
		return nil, err
	}

	// Funding: native rails debit the payer directly, capped by value; the
	// token rail pulls the gross from the payer's pre-approved allowance.
	native := product.PaymentMethod != PayToken
	if native {
		if value == nil || value.Cmp(gross) < 0 {
			return nil, fmt.Errorf("%w: supplied value below gross %s", ErrInsufficientPayment, gross)
		}
		if err := e.transferNative(payer, e.shop.Address, gross); err != nil {
			return nil, err
		}
	} else {
		if err := e.state.TokenPull(product.PaymentToken, payer, e.shop.Address, gross); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInsufficientPayment, err)
		}
	}

	// Inventory commits before any outbound transfer so a malicious payout
	// wallet observing the shop mid-settlement can never double-spend stock.
	product.Amount = new(big.Int).Sub(product.Amount, quantity)
	if err := e.state.ProductPut(product); err != nil {
		return nil, err
	}

	var affiliateWallet [20]byte
	if affiliateConfirmed {
		affiliateWallet = affiliate.Publisher
	}
	if err := e.payout(native, product.PaymentToken, split, affiliateWallet); err != nil {
		return nil, err
	}

	if err := e.state.InventoryTransfer(product.NFTAddress, product.TokenID, e.shop.Address, recipient, quantity, product.NFTType); err != nil {
		return nil, err
	}

	receipt := &Receipt{
		ProductID: product.ID,
		Quantity:  quantity,
		Gross:     gross,
		Method:    product.PaymentMethod,
		Split:     split,
		Affiliate: affiliateWallet,
	}
	e.emit(NewPurchaseEvent(e.shop.Address, recipient, receipt))
	return receipt, nil
}

// payout executes the split transfers in the normative order: platform,
// affiliate, beneficiaries (registration order), producer.
func (e *Engine) payout(native bool, token [20]byte, split *Split, affiliateWallet [20]byte) error {
	pay := func(to [20]byte, amount *big.Int) error {
		if amount == nil || amount.Sign() == 0 {
			return nil
		}
		if native {
			return e.transferNative(e.shop.Address, to, amount)
		}
		return e.state.TokenTransfer(token, e.shop.Address, to, amount)
	}
	if err := pay(e.params.FeeWallet, split.Platform); err != nil {
		return err
	}
	if err := pay(affiliateWallet, split.Affiliate); err != nil {
		return err
	}
	for _, payout := range split.Beneficiaries {
		if err := pay(payout.Wallet, payout.Amount); err != nil {
			return err
		}
	}
	return pay(e.shop.Owner, split.Producer)
}
