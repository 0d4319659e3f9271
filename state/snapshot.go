package state

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"

	"dropshop/core/types"
	"dropshop/native/catalog"
)

// Snapshot is the JSON-serialisable image of a ledger, used by the storage
// layer to persist and recover marketplace state. Amounts are decimal
// strings, addresses and hashes lowercase hex.
type Snapshot struct {
	Accounts   map[string]StoredAccount `json:"accounts,omitempty"`
	Allowances []StoredAllowance        `json:"allowances,omitempty"`
	Inventory  []StoredInventory        `json:"inventory,omitempty"`
	Shops      map[string]StoredShop    `json:"shops,omitempty"`
}

type StoredAccount struct {
	Nonce   uint64            `json:"nonce,omitempty"`
	Balance string            `json:"balance"`
	Tokens  map[string]string `json:"tokens,omitempty"`
}

type StoredAllowance struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type StoredInventory struct {
	NFT     string `json:"nft"`
	TokenID uint64 `json:"tokenId"`
	Owner   string `json:"owner"`
	Amount  string `json:"amount"`
}

type StoredBeneficiary struct {
	IsPercentage bool   `json:"isPercentage"`
	Value        string `json:"value"`
	Wallet       string `json:"wallet"`
}

type StoredProduct struct {
	TokenID        uint64   `json:"tokenId"`
	NFTAddress     string   `json:"nftAddress"`
	NFTType        uint8    `json:"nftType"`
	ProductType    uint8    `json:"productType"`
	Amount         string   `json:"amount"`
	Price          string   `json:"price"`
	PaymentMethod  uint8    `json:"paymentMethod"`
	PaymentToken   string   `json:"paymentToken"`
	AffiliateBps   uint32   `json:"affiliateBps"`
	BeneficiaryIDs []uint64 `json:"beneficiaryIds,omitempty"`
}

type StoredAffiliate struct {
	Publisher string `json:"publisher"`
	ProductID string `json:"productId"`
	Confirmed bool   `json:"confirmed"`
}

type StoredShop struct {
	Products      []StoredProduct     `json:"products,omitempty"`
	Beneficiaries []StoredBeneficiary `json:"beneficiaries,omitempty"`
	Affiliates    []StoredAffiliate   `json:"affiliates,omitempty"`
	Nullifiers    []string            `json:"nullifiers,omitempty"`
}

func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseBig(v string) (*big.Int, error) {
	if v == "" {
		return big.NewInt(0), nil
	}
	out, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("state: invalid amount %q", v)
	}
	return out, nil
}

func parseAddr(v string) ([20]byte, error) {
	var out [20]byte
	decoded, err := hex.DecodeString(v)
	if err != nil || len(decoded) != 20 {
		return out, fmt.Errorf("state: invalid address %q", v)
	}
	copy(out[:], decoded)
	return out, nil
}

func parseHash(v string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(v)
	if err != nil || len(decoded) != 32 {
		return out, fmt.Errorf("state: invalid hash %q", v)
	}
	copy(out[:], decoded)
	return out, nil
}

// Export renders the ledger into its serialisable snapshot form. Map-backed
// collections are emitted in sorted order so snapshots are deterministic.
func (l *Ledger) Export() *Snapshot {
	snap := &Snapshot{
		Accounts: make(map[string]StoredAccount, len(l.accounts)),
		Shops:    make(map[string]StoredShop, len(l.shops)),
	}
	for addr, acc := range l.accounts {
		stored := StoredAccount{Nonce: acc.Nonce, Balance: formatBig(acc.Balance)}
		if len(acc.Tokens) > 0 {
			stored.Tokens = make(map[string]string, len(acc.Tokens))
			for token, amt := range acc.Tokens {
				stored.Tokens[token] = formatBig(amt)
			}
		}
		snap.Accounts[hex.EncodeToString(addr[:])] = stored
	}
	for key, amt := range l.allowances {
		snap.Allowances = append(snap.Allowances, StoredAllowance{
			Token:   hex.EncodeToString(key.token[:]),
			Owner:   hex.EncodeToString(key.owner[:]),
			Spender: hex.EncodeToString(key.spender[:]),
			Amount:  formatBig(amt),
		})
	}
	sort.Slice(snap.Allowances, func(i, j int) bool {
		a, b := snap.Allowances[i], snap.Allowances[j]
		if a.Token != b.Token {
			return a.Token < b.Token
		}
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		return a.Spender < b.Spender
	})
	for key, amt := range l.inventory {
		snap.Inventory = append(snap.Inventory, StoredInventory{
			NFT:     hex.EncodeToString(key.nft[:]),
			TokenID: key.tokenID,
			Owner:   hex.EncodeToString(key.owner[:]),
			Amount:  formatBig(amt),
		})
	}
	sort.Slice(snap.Inventory, func(i, j int) bool {
		a, b := snap.Inventory[i], snap.Inventory[j]
		if a.NFT != b.NFT {
			return a.NFT < b.NFT
		}
		if a.TokenID != b.TokenID {
			return a.TokenID < b.TokenID
		}
		return a.Owner < b.Owner
	})
	for addr, shop := range l.shops {
		stored := StoredShop{}
		ids := make([][32]byte, 0, len(shop.products))
		for id := range shop.products {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return hex.EncodeToString(ids[i][:]) < hex.EncodeToString(ids[j][:])
		})
		for _, id := range ids {
			p := shop.products[id]
			stored.Products = append(stored.Products, StoredProduct{
				TokenID:        p.TokenID,
				NFTAddress:     hex.EncodeToString(p.NFTAddress[:]),
				NFTType:        uint8(p.NFTType),
				ProductType:    uint8(p.ProductType),
				Amount:         formatBig(p.Amount),
				Price:          formatBig(p.Price),
				PaymentMethod:  uint8(p.PaymentMethod),
				PaymentToken:   hex.EncodeToString(p.PaymentToken[:]),
				AffiliateBps:   p.AffiliateBps,
				BeneficiaryIDs: append([]uint64(nil), p.BeneficiaryIDs...),
			})
		}
		for _, b := range shop.beneficiaries {
			stored.Beneficiaries = append(stored.Beneficiaries, StoredBeneficiary{
				IsPercentage: b.IsPercentage,
				Value:        formatBig(b.Value),
				Wallet:       hex.EncodeToString(b.Wallet[:]),
			})
		}
		for _, r := range shop.affiliates {
			stored.Affiliates = append(stored.Affiliates, StoredAffiliate{
				Publisher: hex.EncodeToString(r.Publisher[:]),
				ProductID: hex.EncodeToString(r.ProductID[:]),
				Confirmed: r.Confirmed,
			})
		}
		for n := range shop.nullifiers {
			stored.Nullifiers = append(stored.Nullifiers, hex.EncodeToString(n[:]))
		}
		sort.Strings(stored.Nullifiers)
		snap.Shops[hex.EncodeToString(addr[:])] = stored
	}
	return snap
}

// FromSnapshot rebuilds a ledger from its serialised form.
func FromSnapshot(snap *Snapshot) (*Ledger, error) {
	ledger := NewLedger()
	if snap == nil {
		return ledger, nil
	}
	for addrStr, stored := range snap.Accounts {
		addr, err := parseAddr(addrStr)
		if err != nil {
			return nil, err
		}
		balance, err := parseBig(stored.Balance)
		if err != nil {
			return nil, err
		}
		acc := &types.Account{Nonce: stored.Nonce, Balance: balance}
		for token, amtStr := range stored.Tokens {
			amt, err := parseBig(amtStr)
			if err != nil {
				return nil, err
			}
			if acc.Tokens == nil {
				acc.Tokens = make(map[string]*big.Int)
			}
			acc.Tokens[token] = amt
		}
		ledger.accounts[addr] = acc
	}
	for _, stored := range snap.Allowances {
		token, err := parseAddr(stored.Token)
		if err != nil {
			return nil, err
		}
		owner, err := parseAddr(stored.Owner)
		if err != nil {
			return nil, err
		}
		spender, err := parseAddr(stored.Spender)
		if err != nil {
			return nil, err
		}
		amount, err := parseBig(stored.Amount)
		if err != nil {
			return nil, err
		}
		ledger.allowances[allowanceKey{token: token, owner: owner, spender: spender}] = amount
	}
	for _, stored := range snap.Inventory {
		nft, err := parseAddr(stored.NFT)
		if err != nil {
			return nil, err
		}
		owner, err := parseAddr(stored.Owner)
		if err != nil {
			return nil, err
		}
		amount, err := parseBig(stored.Amount)
		if err != nil {
			return nil, err
		}
		ledger.inventory[inventoryKey{nft: nft, tokenID: stored.TokenID, owner: owner}] = amount
	}
	for addrStr, stored := range snap.Shops {
		addr, err := parseAddr(addrStr)
		if err != nil {
			return nil, err
		}
		shop := newShopState()
		for _, sp := range stored.Products {
			nft, err := parseAddr(sp.NFTAddress)
			if err != nil {
				return nil, err
			}
			token, err := parseAddr(sp.PaymentToken)
			if err != nil {
				return nil, err
			}
			amount, err := parseBig(sp.Amount)
			if err != nil {
				return nil, err
			}
			price, err := parseBig(sp.Price)
			if err != nil {
				return nil, err
			}
			product := &catalog.Product{
				ID:             catalog.ProductID(nft, sp.TokenID),
				TokenID:        sp.TokenID,
				NFTAddress:     nft,
				NFTType:        catalog.NFTType(sp.NFTType),
				ProductType:    catalog.ProductType(sp.ProductType),
				Amount:         amount,
				Price:          price,
				PaymentMethod:  catalog.PaymentMethod(sp.PaymentMethod),
				PaymentToken:   token,
				AffiliateBps:   sp.AffiliateBps,
				BeneficiaryIDs: append([]uint64(nil), sp.BeneficiaryIDs...),
			}
			shop.products[product.ID] = product
		}
		for _, sb := range stored.Beneficiaries {
			wallet, err := parseAddr(sb.Wallet)
			if err != nil {
				return nil, err
			}
			value, err := parseBig(sb.Value)
			if err != nil {
				return nil, err
			}
			shop.beneficiaries = append(shop.beneficiaries, &catalog.Beneficiary{
				IsPercentage: sb.IsPercentage,
				Value:        value,
				Wallet:       wallet,
			})
		}
		for _, sa := range stored.Affiliates {
			publisher, err := parseAddr(sa.Publisher)
			if err != nil {
				return nil, err
			}
			productID, err := parseHash(sa.ProductID)
			if err != nil {
				return nil, err
			}
			shop.affiliates = append(shop.affiliates, &catalog.AffiliateRequest{
				Publisher: publisher,
				ProductID: productID,
				Confirmed: sa.Confirmed,
			})
		}
		for _, ns := range stored.Nullifiers {
			n, err := parseHash(ns)
			if err != nil {
				return nil, err
			}
			shop.nullifiers[n] = struct{}{}
		}
		ledger.shops[addr] = shop
	}
	return ledger, nil
}
