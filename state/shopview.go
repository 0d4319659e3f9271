package state

import (
	"fmt"
	"math/big"

	"dropshop/core/types"
	"dropshop/native/catalog"
)

// ShopView scopes the ledger to the catalog records of a single shop. It
// satisfies the catalog engine's state interface; account, token and
// inventory operations delegate to the shared ledger.
type ShopView struct {
	ledger *Ledger
	addr   [20]byte
}

// Shop returns the state view for the given shop address, creating its
// record space on first use.
func (l *Ledger) Shop(addr [20]byte) *ShopView {
	if _, ok := l.shops[addr]; !ok {
		l.shops[addr] = newShopState()
	}
	return &ShopView{ledger: l, addr: addr}
}

func (v *ShopView) shop() *shopState {
	s, ok := v.ledger.shops[v.addr]
	if !ok {
		s = newShopState()
		v.ledger.shops[v.addr] = s
	}
	return s
}

// ProductPut validates and stores the product.
func (v *ShopView) ProductPut(p *catalog.Product) error {
	sanitized, err := catalog.SanitizeProduct(p)
	if err != nil {
		return err
	}
	v.shop().products[sanitized.ID] = sanitized
	return nil
}

// ProductGet returns a copy of the stored product.
func (v *ShopView) ProductGet(id [32]byte) (*catalog.Product, bool) {
	p, ok := v.shop().products[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// BeneficiaryAppend stores a beneficiary and returns its arena id.
func (v *ShopView) BeneficiaryAppend(b *catalog.Beneficiary) (uint64, error) {
	sanitized, err := catalog.SanitizeBeneficiary(b)
	if err != nil {
		return 0, err
	}
	s := v.shop()
	s.beneficiaries = append(s.beneficiaries, sanitized)
	return uint64(len(s.beneficiaries) - 1), nil
}

// BeneficiaryGet returns a copy of the beneficiary stored under id.
func (v *ShopView) BeneficiaryGet(id uint64) (*catalog.Beneficiary, bool) {
	s := v.shop()
	if id >= uint64(len(s.beneficiaries)) {
		return nil, false
	}
	return s.beneficiaries[id].Clone(), true
}

// AffiliateAppend stores a request and returns its arena id.
func (v *ShopView) AffiliateAppend(req *catalog.AffiliateRequest) (uint64, error) {
	if req == nil {
		return 0, fmt.Errorf("state: nil affiliate request")
	}
	s := v.shop()
	s.affiliates = append(s.affiliates, req.Clone())
	return uint64(len(s.affiliates) - 1), nil
}

// AffiliatePut overwrites the request stored under id.
func (v *ShopView) AffiliatePut(id uint64, req *catalog.AffiliateRequest) error {
	if req == nil {
		return fmt.Errorf("state: nil affiliate request")
	}
	s := v.shop()
	if id >= uint64(len(s.affiliates)) {
		return fmt.Errorf("state: affiliate request %d out of range", id)
	}
	s.affiliates[id] = req.Clone()
	return nil
}

// AffiliateGet returns a copy of the request stored under id.
func (v *ShopView) AffiliateGet(id uint64) (*catalog.AffiliateRequest, bool) {
	s := v.shop()
	if id >= uint64(len(s.affiliates)) {
		return nil, false
	}
	return s.affiliates[id].Clone(), true
}

// AffiliateLookup finds the request a publisher holds against a product.
func (v *ShopView) AffiliateLookup(publisher [20]byte, productID [32]byte) (uint64, bool) {
	s := v.shop()
	for i, req := range s.affiliates {
		if req.Publisher == publisher && req.ProductID == productID {
			return uint64(i), true
		}
	}
	return 0, false
}

// AffiliateCount reports the length of the request arena.
func (v *ShopView) AffiliateCount() uint64 {
	return uint64(len(v.shop().affiliates))
}

// NullifierSpent reports whether the nullifier has been consumed.
func (v *ShopView) NullifierSpent(nullifier [32]byte) (bool, error) {
	_, spent := v.shop().nullifiers[nullifier]
	return spent, nil
}

// NullifierSpend consumes a nullifier; consuming twice is an error.
func (v *ShopView) NullifierSpend(nullifier [32]byte) error {
	s := v.shop()
	if _, spent := s.nullifiers[nullifier]; spent {
		return fmt.Errorf("state: nullifier already spent")
	}
	s.nullifiers[nullifier] = struct{}{}
	return nil
}

// --- shared ledger delegation ---

func (v *ShopView) GetAccount(addr []byte) (*types.Account, error) {
	return v.ledger.GetAccount(addr)
}

func (v *ShopView) PutAccount(addr []byte, account *types.Account) error {
	return v.ledger.PutAccount(addr, account)
}

func (v *ShopView) TokenTransfer(token, from, to [20]byte, amount *big.Int) error {
	return v.ledger.TokenTransfer(token, from, to, amount)
}

func (v *ShopView) TokenPull(token, owner, spender [20]byte, amount *big.Int) error {
	return v.ledger.TokenPull(token, owner, spender, amount)
}

func (v *ShopView) InventoryMint(nft [20]byte, tokenID uint64, to [20]byte, amount *big.Int, nftType catalog.NFTType) error {
	return v.ledger.InventoryMint(nft, tokenID, to, amount, nftType)
}

func (v *ShopView) InventoryTransfer(nft [20]byte, tokenID uint64, from, to [20]byte, amount *big.Int, nftType catalog.NFTType) error {
	return v.ledger.InventoryTransfer(nft, tokenID, from, to, amount, nftType)
}
