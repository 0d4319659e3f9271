package state

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"dropshop/core/types"
	"dropshop/native/catalog"
)

type allowanceKey struct {
	token   [20]byte
	owner   [20]byte
	spender [20]byte
}

type inventoryKey struct {
	nft     [20]byte
	tokenID uint64
	owner   [20]byte
}

type shopState struct {
	products      map[[32]byte]*catalog.Product
	beneficiaries []*catalog.Beneficiary
	affiliates    []*catalog.AffiliateRequest
	nullifiers    map[[32]byte]struct{}
}

func newShopState() *shopState {
	return &shopState{
		products:   make(map[[32]byte]*catalog.Product),
		nullifiers: make(map[[32]byte]struct{}),
	}
}

func (s *shopState) clone() *shopState {
	clone := newShopState()
	for id, p := range s.products {
		clone.products[id] = p.Clone()
	}
	clone.beneficiaries = make([]*catalog.Beneficiary, 0, len(s.beneficiaries))
	for _, b := range s.beneficiaries {
		clone.beneficiaries = append(clone.beneficiaries, b.Clone())
	}
	clone.affiliates = make([]*catalog.AffiliateRequest, 0, len(s.affiliates))
	for _, r := range s.affiliates {
		clone.affiliates = append(clone.affiliates, r.Clone())
	}
	for n := range s.nullifiers {
		clone.nullifiers[n] = struct{}{}
	}
	return clone
}

// Ledger is the in-memory marketplace state: participant accounts, ERC20
// balances and allowances, tokenised inventory, and the per-shop catalog
// records. It mirrors the substrate's execution model — single-threaded,
// sequential calls — so it performs no internal locking; callers serialise
// access (the gateway holds one mutex across each operation).
type Ledger struct {
	accounts   map[[20]byte]*types.Account
	allowances map[allowanceKey]*big.Int
	inventory  map[inventoryKey]*big.Int
	shops      map[[20]byte]*shopState
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:   make(map[[20]byte]*types.Account),
		allowances: make(map[allowanceKey]*big.Int),
		inventory:  make(map[inventoryKey]*big.Int),
		shops:      make(map[[20]byte]*shopState),
	}
}

func (l *Ledger) clone() *Ledger {
	clone := NewLedger()
	for addr, acc := range l.accounts {
		clone.accounts[addr] = acc.Clone()
	}
	for key, amt := range l.allowances {
		clone.allowances[key] = new(big.Int).Set(amt)
	}
	for key, amt := range l.inventory {
		clone.inventory[key] = new(big.Int).Set(amt)
	}
	for addr, shop := range l.shops {
		clone.shops[addr] = shop.clone()
	}
	return clone
}

func (l *Ledger) restore(from *Ledger) {
	l.accounts = from.accounts
	l.allowances = from.allowances
	l.inventory = from.inventory
	l.shops = from.shops
}

// WithSnapshot runs fn against the ledger and restores the pre-call state if
// fn returns an error, giving multi-step operations all-or-nothing
// semantics.
func (l *Ledger) WithSnapshot(fn func() error) error {
	if l == nil {
		return fmt.Errorf("state: ledger not initialised")
	}
	backup := l.clone()
	if err := fn(); err != nil {
		l.restore(backup)
		return err
	}
	return nil
}

// --- accounts ---

// GetAccount returns a copy of the stored account, or nil when the address
// has never been seen.
func (l *Ledger) GetAccount(addr []byte) (*types.Account, error) {
	if len(addr) != 20 {
		return nil, fmt.Errorf("state: address must be 20 bytes")
	}
	var key [20]byte
	copy(key[:], addr)
	acc, ok := l.accounts[key]
	if !ok {
		return nil, nil
	}
	return acc.Clone(), nil
}

// PutAccount stores a copy of the account.
func (l *Ledger) PutAccount(addr []byte, account *types.Account) error {
	if len(addr) != 20 {
		return fmt.Errorf("state: address must be 20 bytes")
	}
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	var key [20]byte
	copy(key[:], addr)
	l.accounts[key] = account.Clone()
	return nil
}

// Credit adds native balance to an address. Used by genesis wiring and
// tests.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: credit must be non-negative")
	}
	acc, err := l.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc = types.EnsureAccount(acc)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return l.PutAccount(addr[:], acc)
}

// --- ERC20-style token balances ---

func tokenKey(token [20]byte) string {
	return hex.EncodeToString(token[:])
}

// CreditToken adds token balance to an address.
func (l *Ledger) CreditToken(token, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: credit must be non-negative")
	}
	acc, err := l.GetAccount(addr[:])
	if err != nil {
		return err
	}
	acc = types.EnsureAccount(acc)
	key := tokenKey(token)
	acc.Tokens[key] = new(big.Int).Add(acc.TokenBalance(key), amount)
	return l.PutAccount(addr[:], acc)
}

// TokenBalance reports the token balance held by an address.
func (l *Ledger) TokenBalance(token, addr [20]byte) *big.Int {
	acc, ok := l.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return acc.TokenBalance(tokenKey(token))
}

// TokenTransfer moves token balance between two addresses.
func (l *Ledger) TokenTransfer(token, from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	fromAcc, err := l.GetAccount(from[:])
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	key := tokenKey(token)
	balance := fromAcc.TokenBalance(key)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("state: token balance %s below %s", balance, amount)
	}
	// Self-transfers move nothing; storing two clones of the same account
	// would keep only the credited copy.
	if from == to {
		return nil
	}
	toAcc, err := l.GetAccount(to[:])
	if err != nil {
		return err
	}
	toAcc = types.EnsureAccount(toAcc)
	fromAcc.Tokens[key] = balance.Sub(balance, amount)
	toAcc.Tokens[key] = new(big.Int).Add(toAcc.TokenBalance(key), amount)
	if err := l.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return l.PutAccount(to[:], toAcc)
}

// TokenApprove grants spender an allowance over owner's token balance.
func (l *Ledger) TokenApprove(token, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative allowance")
	}
	l.allowances[allowanceKey{token: token, owner: owner, spender: spender}] = new(big.Int).Set(amount)
	return nil
}

// TokenAllowance reports the remaining allowance.
func (l *Ledger) TokenAllowance(token, owner, spender [20]byte) *big.Int {
	if amt, ok := l.allowances[allowanceKey{token: token, owner: owner, spender: spender}]; ok {
		return new(big.Int).Set(amt)
	}
	return big.NewInt(0)
}

// TokenPull moves amount from owner to spender, consuming the matching
// allowance. This is the pull half of the pull-then-push ERC20 settlement.
func (l *Ledger) TokenPull(token, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: pull amount must be positive")
	}
	key := allowanceKey{token: token, owner: owner, spender: spender}
	allowance, ok := l.allowances[key]
	if !ok || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("state: allowance below %s", amount)
	}
	if err := l.TokenTransfer(token, owner, spender, amount); err != nil {
		return err
	}
	l.allowances[key] = new(big.Int).Sub(allowance, amount)
	return nil
}

// --- tokenised inventory ---

// InventoryMint credits freshly minted inventory to an owner. ERC721 mints
// are constrained to a single unit per token id.
func (l *Ledger) InventoryMint(nft [20]byte, tokenID uint64, to [20]byte, amount *big.Int, nftType catalog.NFTType) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: mint amount must be positive")
	}
	key := inventoryKey{nft: nft, tokenID: tokenID, owner: to}
	current := big.NewInt(0)
	if existing, ok := l.inventory[key]; ok {
		current = new(big.Int).Set(existing)
	}
	if nftType == catalog.NFTERC721 {
		next := new(big.Int).Add(current, amount)
		if next.Cmp(big.NewInt(1)) > 0 {
			return fmt.Errorf("state: erc721 token %d already minted", tokenID)
		}
	}
	l.inventory[key] = current.Add(current, amount)
	return nil
}

// InventoryTransfer moves inventory between owners.
func (l *Ledger) InventoryTransfer(nft [20]byte, tokenID uint64, from, to [20]byte, amount *big.Int, nftType catalog.NFTType) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: transfer amount must be positive")
	}
	if nftType == catalog.NFTERC721 && amount.Cmp(big.NewInt(1)) != 0 {
		return fmt.Errorf("state: erc721 transfers move exactly one token")
	}
	fromKey := inventoryKey{nft: nft, tokenID: tokenID, owner: from}
	current, ok := l.inventory[fromKey]
	if !ok || current.Cmp(amount) < 0 {
		return fmt.Errorf("state: inventory balance below %s", amount)
	}
	// Same slot on both sides: the write below would net a pure credit.
	if from == to {
		return nil
	}
	toKey := inventoryKey{nft: nft, tokenID: tokenID, owner: to}
	target := big.NewInt(0)
	if existing, ok := l.inventory[toKey]; ok {
		target = new(big.Int).Set(existing)
	}
	l.inventory[fromKey] = new(big.Int).Sub(current, amount)
	l.inventory[toKey] = target.Add(target, amount)
	return nil
}

// InventoryBalance reports the inventory an owner holds for one token.
func (l *Ledger) InventoryBalance(nft [20]byte, tokenID uint64, owner [20]byte) *big.Int {
	if amt, ok := l.inventory[inventoryKey{nft: nft, tokenID: tokenID, owner: owner}]; ok {
		return new(big.Int).Set(amt)
	}
	return big.NewInt(0)
}
