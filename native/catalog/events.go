package catalog

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"dropshop/core/types"
)

const (
	EventTypeProductRegistered     = "shop.product.registered"
	EventTypeProductPurchased      = "shop.product.purchased"
	EventTypeAffiliateRequested    = "shop.affiliate.requested"
	EventTypeAffiliateApproved     = "shop.affiliate.approved"
	EventTypeAffiliateDisapproved  = "shop.affiliate.disapproved"
	EventTypeClaimSettled          = "shop.claim.settled"
)

// NewProductRegisteredEvent returns the canonical payload for a product
// registration, carrying the freshly added inventory delta alongside the
// resulting totals.
func NewProductRegisteredEvent(shop [20]byte, p *Product, added *big.Int) *types.Event {
	attrs := map[string]string{"shop": hex.EncodeToString(shop[:])}
	if p != nil {
		attrs["id"] = hex.EncodeToString(p.ID[:])
		attrs["nft"] = hex.EncodeToString(p.NFTAddress[:])
		attrs["tokenId"] = strconv.FormatUint(p.TokenID, 10)
		attrs["nftType"] = p.NFTType.String()
		attrs["productType"] = p.ProductType.String()
		attrs["paymentMethod"] = p.PaymentMethod.String()
		attrs["price"] = formatAmount(p.Price)
		attrs["amount"] = formatAmount(p.Amount)
		attrs["affiliateBps"] = strconv.FormatUint(uint64(p.AffiliateBps), 10)
	}
	if added != nil {
		attrs["added"] = added.String()
	}
	return &types.Event{Type: EventTypeProductRegistered, Attributes: attrs}
}

// NewPurchaseEvent returns the canonical payload for a settled purchase.
func NewPurchaseEvent(shop, recipient [20]byte, r *Receipt) *types.Event {
	attrs := map[string]string{
		"shop":      hex.EncodeToString(shop[:]),
		"recipient": hex.EncodeToString(recipient[:]),
	}
	if r != nil {
		attrs["id"] = hex.EncodeToString(r.ProductID[:])
		attrs["quantity"] = formatAmount(r.Quantity)
		attrs["gross"] = formatAmount(r.Gross)
		attrs["method"] = r.Method.String()
		if r.Split != nil {
			attrs["platform"] = formatAmount(r.Split.Platform)
			attrs["affiliate"] = formatAmount(r.Split.Affiliate)
			attrs["beneficiaries"] = formatAmount(r.Split.BeneficiaryTotal)
			attrs["producer"] = formatAmount(r.Split.Producer)
		}
		if r.Affiliate != ([20]byte{}) {
			attrs["publisher"] = hex.EncodeToString(r.Affiliate[:])
		}
	}
	return &types.Event{Type: EventTypeProductPurchased, Attributes: attrs}
}

func newAffiliateEvent(eventType string, shop [20]byte, id uint64, req *AffiliateRequest) *types.Event {
	attrs := map[string]string{
		"shop":      hex.EncodeToString(shop[:]),
		"requestId": strconv.FormatUint(id, 10),
	}
	if req != nil {
		attrs["publisher"] = hex.EncodeToString(req.Publisher[:])
		attrs["productId"] = hex.EncodeToString(req.ProductID[:])
		attrs["confirmed"] = strconv.FormatBool(req.Confirmed)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewAffiliateRequestedEvent returns the payload for a new publisher request.
func NewAffiliateRequestedEvent(shop [20]byte, id uint64, req *AffiliateRequest) *types.Event {
	return newAffiliateEvent(EventTypeAffiliateRequested, shop, id, req)
}

// NewAffiliateApprovedEvent returns the payload for a producer approval.
func NewAffiliateApprovedEvent(shop [20]byte, id uint64, req *AffiliateRequest) *types.Event {
	return newAffiliateEvent(EventTypeAffiliateApproved, shop, id, req)
}

// NewAffiliateDisapprovedEvent returns the payload for a producer revocation.
func NewAffiliateDisapprovedEvent(shop [20]byte, id uint64, req *AffiliateRequest) *types.Event {
	return newAffiliateEvent(EventTypeAffiliateDisapproved, shop, id, req)
}

// NewClaimSettledEvent returns the payload emitted once a claim voucher has
// fully settled.
func NewClaimSettledEvent(shop, claimer [20]byte, voucher *ClaimVoucher) *types.Event {
	attrs := map[string]string{
		"shop":    hex.EncodeToString(shop[:]),
		"claimer": hex.EncodeToString(claimer[:]),
	}
	if voucher != nil {
		attrs["lines"] = strconv.Itoa(len(voucher.Cart))
		digest := voucher.Hash()
		attrs["voucher"] = hex.EncodeToString(digest[:])
	}
	return &types.Event{Type: EventTypeClaimSettled, Attributes: attrs}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
