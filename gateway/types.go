package gateway

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"dropshop/crypto"
	"dropshop/native/catalog"
)

// Request and response payloads exchanged over the HTTP surface. Participant
// addresses travel as bech32 strings (drop1... / shop1...), hashes and ids as
// hex, amounts as decimal strings.

type createShopRequest struct {
	Owner       string `json:"owner"`
	Manager     string `json:"manager"`
	Name        string `json:"name"`
	LogoURL     string `json:"logoUrl,omitempty"`
	Description string `json:"description,omitempty"`
}

type shopResponse struct {
	Address     string `json:"address"`
	Owner       string `json:"owner"`
	Manager     string `json:"manager"`
	Name        string `json:"name"`
	LogoURL     string `json:"logoUrl,omitempty"`
	Description string `json:"description,omitempty"`
}

type setManagerRequest struct {
	Caller  string `json:"caller"`
	Manager string `json:"manager"`
}

type beneficiaryPayload struct {
	IsPercentage bool   `json:"isPercentage"`
	Value        string `json:"value"`
	Wallet       string `json:"wallet"`
}

type registerProductRequest struct {
	Caller        string               `json:"caller"`
	TokenID       uint64               `json:"tokenId"`
	NFTAddress    string               `json:"nftAddress"`
	NFTType       string               `json:"nftType"`
	ProductType   string               `json:"productType"`
	Amount        string               `json:"amount"`
	Price         string               `json:"price"`
	PaymentMethod string               `json:"paymentMethod"`
	PaymentToken  string               `json:"paymentToken,omitempty"`
	AffiliateBps  uint32               `json:"affiliateBps,omitempty"`
	Beneficiaries []beneficiaryPayload `json:"beneficiaries,omitempty"`
}

type productResponse struct {
	ID             string   `json:"id"`
	TokenID        uint64   `json:"tokenId"`
	NFTAddress     string   `json:"nftAddress"`
	NFTType        string   `json:"nftType"`
	ProductType    string   `json:"productType"`
	Amount         string   `json:"amount"`
	Price          string   `json:"price"`
	PaymentMethod  string   `json:"paymentMethod"`
	PaymentToken   string   `json:"paymentToken,omitempty"`
	AffiliateBps   uint32   `json:"affiliateBps,omitempty"`
	BeneficiaryIDs []uint64 `json:"beneficiaryIds,omitempty"`
}

type affiliateRequestPayload struct {
	Publisher string `json:"publisher"`
	ProductID string `json:"productId"`
}

type affiliateResponse struct {
	ID        uint64 `json:"id"`
	Publisher string `json:"publisher"`
	ProductID string `json:"productId"`
	Confirmed bool   `json:"confirmed"`
}

type affiliateActionRequest struct {
	Caller string `json:"caller"`
}

type purchaseRequest struct {
	Buyer        string  `json:"buyer"`
	ProductID    string  `json:"productId,omitempty"`
	AffiliateID  *uint64 `json:"affiliateId,omitempty"`
	Quantity     string  `json:"quantity"`
	Value        string  `json:"value,omitempty"`
	MinAmountOut string  `json:"minAmountOut,omitempty"`
}

type splitResponse struct {
	Gross         string   `json:"gross"`
	Platform      string   `json:"platform"`
	Affiliate     string   `json:"affiliate"`
	Beneficiaries []string `json:"beneficiaries,omitempty"`
	Producer      string   `json:"producer"`
}

type receiptResponse struct {
	ProductID string         `json:"productId"`
	Quantity  string         `json:"quantity"`
	Gross     string         `json:"gross"`
	Method    string         `json:"method"`
	Split     *splitResponse `json:"split,omitempty"`
}

type claimRequest struct {
	Claimer   string               `json:"claimer"`
	Manager   string               `json:"manager"`
	Signature string               `json:"signature"`
	Voucher   catalog.ClaimVoucher `json:"voucher"`
}

type checkoutEntryPayload struct {
	Shop        string `json:"shop"`
	ID          string `json:"id"`
	IsAffiliate bool   `json:"isAffiliate,omitempty"`
	Amount      string `json:"amount"`
}

type checkoutRequest struct {
	Buyer        string                 `json:"buyer"`
	Entries      []checkoutEntryPayload `json:"entries"`
	PaymentToken string                 `json:"paymentToken,omitempty"`
	Value        string                 `json:"value,omitempty"`
	MinAmountOut string                 `json:"minAmountOut,omitempty"`
}

type airdropRequest struct {
	Sender     string   `json:"sender"`
	Token      string   `json:"token"`
	TokenID    uint64   `json:"tokenId,omitempty"`
	Recipients []string `json:"recipients"`
	Amounts    []string `json:"amounts,omitempty"`
	TokenIDs   []uint64 `json:"tokenIds,omitempty"`
	Memo       string   `json:"memo,omitempty"`
}

type paramsPayload struct {
	Caller           string `json:"caller,omitempty"`
	FeeBps           uint32 `json:"feeBps"`
	FeeWallet        string `json:"feeWallet"`
	HeartbeatSeconds uint64 `json:"heartbeatSeconds,omitempty"`
}

type fundRequest struct {
	Address string `json:"address"`
	Token   string `json:"token,omitempty"`
	Amount  string `json:"amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- encoding helpers ---

func decodeBech(value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, fmt.Errorf("invalid address %q: %w", value, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func encodeDrop(addr [20]byte) string {
	return crypto.NewAddress(crypto.DropPrefix, append([]byte(nil), addr[:]...)).String()
}

func encodeShop(addr [20]byte) string {
	return crypto.NewAddress(crypto.ShopPrefix, append([]byte(nil), addr[:]...)).String()
}

func decodeAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func decodeHash(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 32 {
		return out, fmt.Errorf("invalid hash %q", value)
	}
	copy(out[:], decoded)
	return out, nil
}

func decodeHexAddr(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 20 {
		return out, fmt.Errorf("invalid hex address %q", value)
	}
	copy(out[:], decoded)
	return out, nil
}

func decodeSignature(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil || len(decoded) != 65 {
		return nil, fmt.Errorf("invalid signature %q", value)
	}
	return decoded, nil
}

func parseNFTType(value string) (catalog.NFTType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "erc1155":
		return catalog.NFTERC1155, nil
	case "erc721":
		return catalog.NFTERC721, nil
	}
	return 0, fmt.Errorf("invalid nft type %q", value)
}

func parseProductType(value string) (catalog.ProductType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "digital":
		return catalog.ProductDigital, nil
	case "pod", "print-on-demand":
		return catalog.ProductPOD, nil
	case "physical":
		return catalog.ProductPhysical, nil
	}
	return 0, fmt.Errorf("invalid product type %q", value)
}

func parsePaymentMethod(value string) (catalog.PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "native":
		return catalog.PayNative, nil
	case "usd":
		return catalog.PayUSD, nil
	case "token":
		return catalog.PayToken, nil
	}
	return 0, fmt.Errorf("invalid payment method %q", value)
}

func shopToResponse(info catalog.ShopInfo) shopResponse {
	return shopResponse{
		Address:     encodeShop(info.Address),
		Owner:       encodeDrop(info.Owner),
		Manager:     encodeDrop(info.Manager),
		Name:        info.Name,
		LogoURL:     info.LogoURL,
		Description: info.Description,
	}
}

func productToResponse(p *catalog.Product) productResponse {
	resp := productResponse{
		ID:             "0x" + hex.EncodeToString(p.ID[:]),
		TokenID:        p.TokenID,
		NFTAddress:     "0x" + hex.EncodeToString(p.NFTAddress[:]),
		NFTType:        p.NFTType.String(),
		ProductType:    p.ProductType.String(),
		Amount:         p.Amount.String(),
		Price:          p.Price.String(),
		PaymentMethod:  p.PaymentMethod.String(),
		AffiliateBps:   p.AffiliateBps,
		BeneficiaryIDs: append([]uint64(nil), p.BeneficiaryIDs...),
	}
	if p.PaymentMethod == catalog.PayToken {
		resp.PaymentToken = "0x" + hex.EncodeToString(p.PaymentToken[:])
	}
	return resp
}

func receiptToResponse(r *catalog.Receipt) receiptResponse {
	resp := receiptResponse{
		ProductID: "0x" + hex.EncodeToString(r.ProductID[:]),
		Quantity:  r.Quantity.String(),
		Gross:     r.Gross.String(),
		Method:    r.Method.String(),
	}
	if r.Split != nil {
		split := &splitResponse{
			Gross:     r.Split.Gross.String(),
			Platform:  r.Split.Platform.String(),
			Affiliate: r.Split.Affiliate.String(),
			Producer:  r.Split.Producer.String(),
		}
		for _, payout := range r.Split.Beneficiaries {
			split.Beneficiaries = append(split.Beneficiaries, payout.Amount.String())
		}
		resp.Split = split
	}
	return resp
}
