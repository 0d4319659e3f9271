package catalog

import (
	"fmt"
	"math/big"

	"dropshop/crypto"
)

// ClaimPurchase delivers already-purchased goods against a voucher signed by
// the shop's manager key. The whole voucher settles atomically: every
// nullifier is checked before any is consumed, so a single replayed line
// fails the entire claim with no partial delivery.
//
// The caller-supplied manager address must match the shop's configured
// manager in addition to the recovered signer; this rejects clients pinned to
// a rotated-out key instead of silently honouring their vouchers.
func (e *Engine) ClaimPurchase(claimer, manager [20]byte, signature []byte, voucher *ClaimVoucher) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if voucher == nil || len(voucher.Cart) == 0 {
		return fmt.Errorf("catalog: empty claim voucher")
	}
	if voucher.Shop != e.shop.Address {
		return fmt.Errorf("catalog: voucher bound to different shop")
	}
	if manager != e.shop.Manager {
		return ErrUnauthorized
	}
	digest := voucher.Hash()
	signer, err := crypto.RecoverAddress(digest[:], signature)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	if signer != e.shop.Manager {
		return ErrInvalidSignature
	}

	// First pass: validate every line before touching state. A nullifier
	// repeated inside the same voucher counts as a replay, and quantities
	// for the same product aggregate against its remaining inventory.
	seen := make(map[[32]byte]struct{}, len(voucher.Cart))
	required := make(map[[32]byte]*big.Int)
	for i, line := range voucher.Cart {
		if line.Amount == nil || line.Amount.Sign() <= 0 {
			return fmt.Errorf("catalog: claim line %d amount must be positive", i)
		}
		if _, dup := seen[line.Nullifier]; dup {
			return ErrAlreadyClaimed
		}
		seen[line.Nullifier] = struct{}{}
		spent, err := e.state.NullifierSpent(line.Nullifier)
		if err != nil {
			return err
		}
		if spent {
			return ErrAlreadyClaimed
		}
		product, ok := e.state.ProductGet(line.ProductID)
		if !ok {
			return ErrProductNotFound
		}
		total, ok := required[line.ProductID]
		if !ok {
			total = big.NewInt(0)
		}
		total = new(big.Int).Add(total, line.Amount)
		if product.Amount.Cmp(total) < 0 {
			return ErrInsufficientInventory
		}
		required[line.ProductID] = total
	}

	// Second pass: consume nullifiers and decrement inventory before the
	// asset transfers, mirroring the settlement ordering.
	for _, line := range voucher.Cart {
		if err := e.state.NullifierSpend(line.Nullifier); err != nil {
			return err
		}
		product, ok := e.state.ProductGet(line.ProductID)
		if !ok {
			return ErrProductNotFound
		}
		product.Amount = new(big.Int).Sub(product.Amount, line.Amount)
		if err := e.state.ProductPut(product); err != nil {
			return err
		}
	}
	for _, line := range voucher.Cart {
		product, ok := e.state.ProductGet(line.ProductID)
		if !ok {
			return ErrProductNotFound
		}
		if err := e.state.InventoryTransfer(product.NFTAddress, product.TokenID, e.shop.Address, claimer, line.Amount, product.NFTType); err != nil {
			return err
		}
	}
	e.emit(NewClaimSettledEvent(e.shop.Address, claimer, voucher))
	return nil
}
