package gateway

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dropshop/crypto"
	"dropshop/native/catalog"
	"dropshop/native/pricing"
)

func dropAddr(seed byte) string {
	raw := make([]byte, 20)
	raw[19] = seed
	return crypto.NewAddress(crypto.DropPrefix, raw).String()
}

func addrBytes(encoded string) [20]byte {
	addr, err := crypto.DecodeAddress(encoded)
	if err != nil {
		panic(err)
	}
	var out [20]byte
	copy(out[:], addr.Bytes())
	return out
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	feed := pricing.NewManualFeed()
	feed.Set(big.NewInt(2000_00000000), 8, time.Now())
	server, err := NewServer(Config{
		Params: catalog.Params{FeeBps: 100, FeeWallet: addrBytes(dropAddr(0xfe))},
		Oracle: pricing.NewAdapter(feed, time.Hour),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decode response %s: %v", rec.Body.String(), err)
	}
}

func createShop(t *testing.T, server *Server, owner, manager, name string) shopResponse {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/v1/shops", createShopRequest{
		Owner:   owner,
		Manager: manager,
		Name:    name,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create shop: %d %s", rec.Code, rec.Body.String())
	}
	var shop shopResponse
	decodeJSON(t, rec, &shop)
	return shop
}

func fund(t *testing.T, server *Server, address, amount string) {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/v1/admin/fund", fundRequest{Address: address, Amount: amount})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("fund: %d %s", rec.Code, rec.Body.String())
	}
}

func registerNativeProduct(t *testing.T, server *Server, shop shopResponse, owner string, tokenID uint64, amount, price string, beneficiaries []beneficiaryPayload) productResponse {
	t.Helper()
	rec := doJSON(t, server, http.MethodPost, "/v1/shops/"+shop.Address+"/products", registerProductRequest{
		Caller:        owner,
		TokenID:       tokenID,
		NFTAddress:    "0x00000000000000000000000000000000000000aa",
		NFTType:       "erc1155",
		ProductType:   "digital",
		Amount:        amount,
		Price:         price,
		PaymentMethod: "native",
		Beneficiaries: beneficiaries,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register product: %d %s", rec.Code, rec.Body.String())
	}
	var product productResponse
	decodeJSON(t, rec, &product)
	return product
}

func TestShopLifecycle(t *testing.T) {
	server := newTestServer(t)
	owner := dropAddr(0x01)
	buyer := dropAddr(0x02)
	beneficiary := dropAddr(0x03)

	shop := createShop(t, server, owner, "", "vinyl-press")
	if shop.Manager != owner {
		t.Fatalf("expected manager to default to owner, got %s", shop.Manager)
	}

	product := registerNativeProduct(t, server, shop, owner, 7, "10", "1000", []beneficiaryPayload{
		{IsPercentage: true, Value: "500", Wallet: beneficiary},
	})

	fund(t, server, buyer, "5000")

	rec := doJSON(t, server, http.MethodPost, "/v1/shops/"+shop.Address+"/purchase", purchaseRequest{
		Buyer:     buyer,
		ProductID: product.ID,
		Quantity:  "2",
		Value:     "2000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("purchase: %d %s", rec.Code, rec.Body.String())
	}
	var receipt receiptResponse
	decodeJSON(t, rec, &receipt)
	if receipt.Gross != "2000" {
		t.Fatalf("unexpected gross %s", receipt.Gross)
	}
	// 1% platform fee, 5% beneficiary share, remainder to the producer.
	if receipt.Split.Platform != "20" {
		t.Fatalf("unexpected platform share %s", receipt.Split.Platform)
	}
	if len(receipt.Split.Beneficiaries) != 1 || receipt.Split.Beneficiaries[0] != "100" {
		t.Fatalf("unexpected beneficiary shares %v", receipt.Split.Beneficiaries)
	}
	if receipt.Split.Producer != "1880" {
		t.Fatalf("unexpected producer share %s", receipt.Split.Producer)
	}

	ownerAddr := addrBytes(owner)
	ownerBalance, err := server.Ledger().GetAccount(ownerAddr[:])
	if err != nil || ownerBalance == nil {
		t.Fatalf("owner account: %v", err)
	}
	if ownerBalance.Balance.String() != "1880" {
		t.Fatalf("owner balance %s", ownerBalance.Balance)
	}

	rec = doJSON(t, server, http.MethodGet, "/v1/shops/"+shop.Address+"/products/"+product.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get product: %d", rec.Code)
	}
	var fetched productResponse
	decodeJSON(t, rec, &fetched)
	if fetched.Amount != "8" {
		t.Fatalf("expected inventory 8 after purchase, got %s", fetched.Amount)
	}

	missing := "0x" + hex.EncodeToString(bytes.Repeat([]byte{0xab}, 32))
	rec = doJSON(t, server, http.MethodGet, "/v1/shops/"+shop.Address+"/products/"+missing, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", rec.Code)
	}
}

func TestAffiliateWorkflow(t *testing.T) {
	server := newTestServer(t)
	owner := dropAddr(0x01)
	buyer := dropAddr(0x02)
	publisher := dropAddr(0x04)

	shop := createShop(t, server, owner, "", "merch-stand")
	rec := doJSON(t, server, http.MethodPost, "/v1/shops/"+shop.Address+"/products", registerProductRequest{
		Caller:        owner,
		TokenID:       1,
		NFTAddress:    "0x00000000000000000000000000000000000000bb",
		NFTType:       "erc1155",
		ProductType:   "digital",
		Amount:        "10",
		Price:         "1000",
		PaymentMethod: "native",
		AffiliateBps:  1000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register product: %d %s", rec.Code, rec.Body.String())
	}
	var product productResponse
	decodeJSON(t, rec, &product)

	rec = doJSON(t, server, http.MethodPost, "/v1/shops/"+shop.Address+"/affiliates", affiliateRequestPayload{
		Publisher: publisher,
		ProductID: product.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("request affiliate: %d %s", rec.Code, rec.Body.String())
	}
	var affiliate affiliateResponse
	decodeJSON(t, rec, &affiliate)

	// A duplicate request for the same product conflicts.
	rec = doJSON(t, server, http.MethodPost, "/v1/shops/"+shop.Address+"/affiliates", affiliateRequestPayload{
		Publisher: publisher,
		ProductID: product.ID,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected duplicate request conflict, got %d", rec.Code)
	}

	// Only the producer can approve.
	rec = doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/v1/shops/%s/affiliates/%d/approve", shop.Address, affiliate.ID),
		affiliateActionRequest{Caller: publisher})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected non-producer approval to fail, got %d", rec.Code)
	}
	rec = doJSON(t, server, http.MethodPost,
		fmt.Sprintf("/v1/shops/%s/affiliates/%d/approve", shop.Address, affiliate.ID),
		affiliateActionRequest{Caller: owner})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("approve: %d %s", rec.Code, rec.Body.String())
	}

	fund(t, server, buyer, "5000")
	affiliateID := affiliate.ID
	rec = doJSON(t, server, http.MethodPost, "/v1/shops/"+shop.Address+"/purchase", purchaseRequest{
		Buyer:       buyer,
		AffiliateID: &affiliateID,
		Quantity:    "1",
		Value:       "1000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("affiliate purchase: %d %s", rec.Code, rec.Body.String())
	}
	var receipt receiptResponse
	decodeJSON(t, rec, &receipt)
	if receipt.Split.Affiliate != "100" {
		t.Fatalf("expected 10%% affiliate share, got %s", receipt.Split.Affiliate)
	}

	publisherAddr := addrBytes(publisher)
	publisherAccount, err := server.Ledger().GetAccount(publisherAddr[:])
	if err != nil || publisherAccount == nil {
		t.Fatalf("publisher account: %v", err)
	}
	if publisherAccount.Balance.String() != "100" {
		t.Fatalf("publisher balance %s", publisherAccount.Balance)
	}
}

func TestClaimEndpoint(t *testing.T) {
	server := newTestServer(t)
	owner := dropAddr(0x01)
	claimer := dropAddr(0x05)

	managerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	manager := managerKey.PubKey().Address().String()

	shop := createShop(t, server, owner, manager, "pressing-plant")
	product := registerNativeProduct(t, server, shop, owner, 9, "5", "1000", nil)

	var productID [32]byte
	decoded, err := hex.DecodeString(product.ID[2:])
	if err != nil {
		t.Fatalf("decode product id: %v", err)
	}
	copy(productID[:], decoded)

	var nullifier [32]byte
	nullifier[0] = 0x77
	voucher := catalog.ClaimVoucher{
		Shop: addrBytes(shop.Address),
		Cart: []catalog.CartLine{{
			Amount:    big.NewInt(2),
			ProductID: productID,
			Nullifier: nullifier,
		}},
	}
	digest := voucher.Hash()
	signature, err := managerKey.Sign(digest[:])
	if err != nil {
		t.Fatalf("sign voucher: %v", err)
	}

	claim := claimRequest{
		Claimer:   claimer,
		Manager:   manager,
		Signature: "0x" + hex.EncodeToString(signature),
		Voucher:   voucher,
	}
	rec := doJSON(t, server, http.MethodPost, "/v1/shops/"+shop.Address+"/claim", claim)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("claim: %d %s", rec.Code, rec.Body.String())
	}

	// Replaying the voucher conflicts on the spent nullifier.
	rec = doJSON(t, server, http.MethodPost, "/v1/shops/"+shop.Address+"/claim", claim)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected replay conflict, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	server := newTestServer(t)
	owner := dropAddr(0x01)
	buyer := dropAddr(0x02)

	first := createShop(t, server, owner, "", "first-press")
	second := createShop(t, server, owner, "", "second-press")
	firstProduct := registerNativeProduct(t, server, first, owner, 1, "10", "1000", nil)
	secondProduct := registerNativeProduct(t, server, second, owner, 2, "10", "500", nil)

	fund(t, server, buyer, "10000")

	rec := doJSON(t, server, http.MethodPost, "/v1/checkout", checkoutRequest{
		Buyer: buyer,
		Value: "2500",
		Entries: []checkoutEntryPayload{
			{Shop: first.Address, ID: firstProduct.ID, Amount: "2"},
			{Shop: second.Address, ID: secondProduct.ID, Amount: "1"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout: %d %s", rec.Code, rec.Body.String())
	}
	var receipts []receiptResponse
	decodeJSON(t, rec, &receipts)
	if len(receipts) != 2 {
		t.Fatalf("expected two receipts, got %d", len(receipts))
	}
	if receipts[0].Gross != "2000" || receipts[1].Gross != "500" {
		t.Fatalf("unexpected grosses %s / %s", receipts[0].Gross, receipts[1].Gross)
	}

	buyerAddr := addrBytes(buyer)
	buyerAccount, err := server.Ledger().GetAccount(buyerAddr[:])
	if err != nil || buyerAccount == nil {
		t.Fatalf("buyer account: %v", err)
	}
	if buyerAccount.Balance.String() != "7500" {
		t.Fatalf("buyer balance %s", buyerAccount.Balance)
	}
}

func TestParamsEndpointAdminGated(t *testing.T) {
	admin := dropAddr(0x0a)
	feed := pricing.NewManualFeed()
	feed.Set(big.NewInt(2000_00000000), 8, time.Now())
	server, err := NewServer(Config{
		Params: catalog.Params{FeeBps: 100, FeeWallet: addrBytes(dropAddr(0xfe))},
		Oracle: pricing.NewAdapter(feed, time.Hour),
		Admin:  addrBytes(admin),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	update := paramsPayload{
		Caller:           dropAddr(0x0b),
		FeeBps:           250,
		FeeWallet:        dropAddr(0xfd),
		HeartbeatSeconds: 120,
	}
	rec := doJSON(t, server, http.MethodPut, "/v1/params", update)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected non-admin update to be rejected, got %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/params", nil)
	var unchanged paramsPayload
	decodeJSON(t, rec, &unchanged)
	if unchanged.FeeBps != 100 {
		t.Fatalf("params changed by rejected update: %+v", unchanged)
	}

	update.Caller = admin
	rec = doJSON(t, server, http.MethodPut, "/v1/params", update)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin update: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, server, http.MethodGet, "/v1/params", nil)
	var got paramsPayload
	decodeJSON(t, rec, &got)
	if got.FeeBps != 250 || got.FeeWallet != dropAddr(0xfd) {
		t.Fatalf("params not applied: %+v", got)
	}
	if got.HeartbeatSeconds != 120 {
		t.Fatalf("heartbeat not applied: %d", got.HeartbeatSeconds)
	}

	// The default server carries no admin, so runtime updates stay off.
	fixed := newTestServer(t)
	update.Caller = admin
	rec = doJSON(t, fixed, http.MethodPut, "/v1/params", update)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected update without configured admin to be rejected, got %d", rec.Code)
	}
}

func TestAirdropEndpoint(t *testing.T) {
	server := newTestServer(t)
	sender := dropAddr(0x01)
	a := dropAddr(0x02)
	b := dropAddr(0x03)
	token := "0x00000000000000000000000000000000000000cc"

	rec := doJSON(t, server, http.MethodPost, "/v1/admin/fund", fundRequest{Address: sender, Token: token, Amount: "100"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("fund token: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, server, http.MethodPost, "/v1/airdrop/erc20", airdropRequest{
		Sender:     sender,
		Token:      token,
		Recipients: []string{a, b},
		Amounts:    []string{"30", "20"},
		Memo:       "launch rewards",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("airdrop: %d %s", rec.Code, rec.Body.String())
	}

	// A length mismatch transfers nothing.
	rec = doJSON(t, server, http.MethodPost, "/v1/airdrop/erc20", airdropRequest{
		Sender:     sender,
		Token:      token,
		Recipients: []string{a, b},
		Amounts:    []string{"1"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected length mismatch rejection, got %d", rec.Code)
	}

	var tokenAddr [20]byte
	tokenAddr[19] = 0xcc
	if got := server.Ledger().TokenBalance(tokenAddr, addrBytes(a)).String(); got != "30" {
		t.Fatalf("recipient a balance %s", got)
	}
	if got := server.Ledger().TokenBalance(tokenAddr, addrBytes(sender)).String(); got != "50" {
		t.Fatalf("sender balance %s", got)
	}
}
