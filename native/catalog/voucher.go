package catalog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ClaimDomainV1 is the domain separator for the first claim voucher version.
const ClaimDomainV1 = "DROPSHOP_CLAIM_V1"

// CartLine authorises delivery of one product quantity. The nullifier is a
// single-use commitment chosen by the voucher signer; reuse permanently fails.
type CartLine struct {
	Amount    *big.Int
	ProductID [32]byte
	Nullifier [32]byte
}

// ClaimVoucher is the off-chain-signed authorisation to deliver
// already-purchased goods without a new payment. The shop address binds the
// voucher to a single marketplace instance.
type ClaimVoucher struct {
	Cart []CartLine
	Shop [20]byte
}

type cartLineJSON struct {
	Amount    string `json:"amount"`
	ProductID string `json:"productId"`
	Nullifier string `json:"nullifier"`
}

type voucherJSON struct {
	Domain string         `json:"domain"`
	Shop   string         `json:"shop"`
	Cart   []cartLineJSON `json:"cart"`
}

// MarshalJSON encodes the voucher into the representation exchanged with the
// signing CLI and the gateway.
func (v ClaimVoucher) MarshalJSON() ([]byte, error) {
	payload := voucherJSON{
		Domain: ClaimDomainV1,
		Shop:   hex.EncodeToString(v.Shop[:]),
		Cart:   make([]cartLineJSON, 0, len(v.Cart)),
	}
	for _, line := range v.Cart {
		amount := "0"
		if line.Amount != nil {
			amount = line.Amount.String()
		}
		payload.Cart = append(payload.Cart, cartLineJSON{
			Amount:    amount,
			ProductID: hex.EncodeToString(line.ProductID[:]),
			Nullifier: hex.EncodeToString(line.Nullifier[:]),
		})
	}
	return json.Marshal(payload)
}

// UnmarshalJSON decodes the on-wire representation into the canonical struct.
func (v *ClaimVoucher) UnmarshalJSON(data []byte) error {
	if v == nil {
		return fmt.Errorf("voucher: nil receiver")
	}
	var payload voucherJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	domain := strings.TrimSpace(payload.Domain)
	if domain != "" && domain != ClaimDomainV1 {
		return fmt.Errorf("voucher: unsupported domain %q", payload.Domain)
	}
	shopBytes, err := decodeHex32or20(payload.Shop, 20)
	if err != nil {
		return fmt.Errorf("voucher: shop: %w", err)
	}
	if len(payload.Cart) == 0 {
		return fmt.Errorf("voucher: empty cart")
	}
	out := ClaimVoucher{Cart: make([]CartLine, 0, len(payload.Cart))}
	copy(out.Shop[:], shopBytes)
	for i, line := range payload.Cart {
		amountStr := strings.TrimSpace(line.Amount)
		amount, ok := new(big.Int).SetString(amountStr, 10)
		if !ok || amount.Sign() <= 0 {
			return fmt.Errorf("voucher: cart[%d]: invalid amount %q", i, line.Amount)
		}
		productBytes, err := decodeHex32or20(line.ProductID, 32)
		if err != nil {
			return fmt.Errorf("voucher: cart[%d]: productId: %w", i, err)
		}
		nullifierBytes, err := decodeHex32or20(line.Nullifier, 32)
		if err != nil {
			return fmt.Errorf("voucher: cart[%d]: nullifier: %w", i, err)
		}
		entry := CartLine{Amount: amount}
		copy(entry.ProductID[:], productBytes)
		copy(entry.Nullifier[:], nullifierBytes)
		out.Cart = append(out.Cart, entry)
	}
	*v = out
	return nil
}

func decodeHex32or20(value string, want int) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, err
	}
	if len(decoded) != want {
		return nil, fmt.Errorf("expected %d bytes, got %d", want, len(decoded))
	}
	return decoded, nil
}

// Hash reconstructs the canonical keccak256 digest signed by the shop
// manager. Every field participates so no line can be altered or reordered
// after signing.
func (v ClaimVoucher) Hash() [32]byte {
	builder := strings.Builder{}
	builder.WriteString(ClaimDomainV1)
	builder.WriteString("|shop=")
	builder.WriteString(hex.EncodeToString(v.Shop[:]))
	for _, line := range v.Cart {
		amount := "0"
		if line.Amount != nil {
			amount = line.Amount.String()
		}
		builder.WriteString("|amount=")
		builder.WriteString(amount)
		builder.WriteString("|product=")
		builder.WriteString(hex.EncodeToString(line.ProductID[:]))
		builder.WriteString("|nullifier=")
		builder.WriteString(hex.EncodeToString(line.Nullifier[:]))
	}
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(builder.String())))
	return out
}
