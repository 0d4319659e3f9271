package catalog

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// BasisPoints is the fixed-point denominator used by every percentage in the
// settlement path: fees, affiliate cuts and percentage beneficiaries.
const BasisPoints = 10_000

// NFTType identifies the token standard backing a product's inventory.
type NFTType uint8

const (
	NFTERC1155 NFTType = iota
	NFTERC721
)

// Valid reports whether the value is within the supported range.
func (t NFTType) Valid() bool {
	switch t {
	case NFTERC1155, NFTERC721:
		return true
	default:
		return false
	}
}

func (t NFTType) String() string {
	switch t {
	case NFTERC1155:
		return "erc1155"
	case NFTERC721:
		return "erc721"
	default:
		return "unknown"
	}
}

// ProductType describes the fulfilment class of a product.
type ProductType uint8

const (
	ProductDigital ProductType = iota
	ProductPOD
	ProductPhysical
)

func (t ProductType) Valid() bool {
	switch t {
	case ProductDigital, ProductPOD, ProductPhysical:
		return true
	default:
		return false
	}
}

func (t ProductType) String() string {
	switch t {
	case ProductDigital:
		return "digital"
	case ProductPOD:
		return "pod"
	case ProductPhysical:
		return "physical"
	default:
		return "unknown"
	}
}

// PaymentMethod selects the rail a product is paid on.
type PaymentMethod uint8

const (
	// PayNative prices the product directly in native wei.
	PayNative PaymentMethod = iota
	// PayUSD prices the product in USD cents; the gross is converted to
	// native wei through the price oracle at purchase time.
	PayUSD
	// PayToken prices the product in the smallest unit of an ERC20-style
	// payment token.
	PayToken
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PayNative, PayUSD, PayToken:
		return true
	default:
		return false
	}
}

func (m PaymentMethod) String() string {
	switch m {
	case PayNative:
		return "native"
	case PayUSD:
		return "usd"
	case PayToken:
		return "token"
	default:
		return "unknown"
	}
}

// Beneficiary is a payout recipient attached to a product. When IsPercentage
// is set Value is a fraction in basis points of the gross payment, otherwise
// Value is an absolute amount in the product's payment currency. Records are
// append-only and immutable once referenced by a product.
type Beneficiary struct {
	IsPercentage bool
	Value        *big.Int
	Wallet       [20]byte
}

// Clone returns a deep copy of the beneficiary.
func (b *Beneficiary) Clone() *Beneficiary {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Value != nil {
		clone.Value = new(big.Int).Set(b.Value)
	} else {
		clone.Value = big.NewInt(0)
	}
	return &clone
}

// SanitizeBeneficiary validates a beneficiary definition and returns a
// normalised copy.
func SanitizeBeneficiary(b *Beneficiary) (*Beneficiary, error) {
	if b == nil {
		return nil, fmt.Errorf("catalog: nil beneficiary")
	}
	clone := b.Clone()
	if clone.Value.Sign() < 0 {
		return nil, fmt.Errorf("catalog: beneficiary value must be non-negative")
	}
	if clone.IsPercentage && clone.Value.Cmp(big.NewInt(BasisPoints)) > 0 {
		return nil, fmt.Errorf("catalog: beneficiary percentage exceeds %d bps", BasisPoints)
	}
	if clone.Wallet == ([20]byte{}) {
		return nil, fmt.Errorf("catalog: beneficiary wallet required")
	}
	return clone, nil
}

// Product captures the sale terms for one tokenised good. The identifier is
// derived from the underlying asset so re-registering the same
// (nftAddress, tokenId) augments inventory instead of creating a duplicate.
// Amount only ever decreases outside of registration; zero-amount products
// remain queryable.
type Product struct {
	ID             [32]byte
	TokenID        uint64
	NFTAddress     [20]byte
	NFTType        NFTType
	ProductType    ProductType
	Amount         *big.Int
	Price          *big.Int
	PaymentMethod  PaymentMethod
	PaymentToken   [20]byte
	AffiliateBps   uint32
	BeneficiaryIDs []uint64
}

// ProductID derives the deterministic product identifier from the underlying
// asset: keccak256(nftAddress || tokenId).
func ProductID(nftAddress [20]byte, tokenID uint64) [32]byte {
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], tokenID)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(nftAddress[:], idBytes[:]))
	return out
}

// Clone returns a deep copy of the product.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if p.Price != nil {
		clone.Price = new(big.Int).Set(p.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	clone.BeneficiaryIDs = append([]uint64(nil), p.BeneficiaryIDs...)
	return &clone
}

// SanitizeProduct validates and normalises the supplied product, returning a
// cloned instance. The original value is not mutated.
func SanitizeProduct(p *Product) (*Product, error) {
	if p == nil {
		return nil, fmt.Errorf("catalog: nil product")
	}
	clone := p.Clone()
	if !clone.NFTType.Valid() {
		return nil, fmt.Errorf("catalog: invalid nft type %d", clone.NFTType)
	}
	if !clone.ProductType.Valid() {
		return nil, fmt.Errorf("catalog: invalid product type %d", clone.ProductType)
	}
	if !clone.PaymentMethod.Valid() {
		return nil, fmt.Errorf("catalog: invalid payment method %d", clone.PaymentMethod)
	}
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("catalog: product amount must be non-negative")
	}
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("catalog: product price must be positive")
	}
	if clone.AffiliateBps > BasisPoints {
		return nil, fmt.Errorf("catalog: affiliate bps out of range: %d", clone.AffiliateBps)
	}
	if clone.PaymentMethod == PayToken && clone.PaymentToken == ([20]byte{}) {
		return nil, fmt.Errorf("catalog: payment token required for token rail")
	}
	if clone.ID != ProductID(clone.NFTAddress, clone.TokenID) {
		return nil, fmt.Errorf("catalog: product id does not match asset")
	}
	return clone, nil
}

// AffiliateRequest tracks one publisher's standing against one product.
// Requests are appended to an ordered arena and never deleted; Confirmed is
// toggled by the producer so the full approval history stays auditable.
type AffiliateRequest struct {
	Publisher [20]byte
	ProductID [32]byte
	Confirmed bool
}

// Clone returns a copy of the request.
func (r *AffiliateRequest) Clone() *AffiliateRequest {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// ProductDefinition is the producer-supplied input to RegisterProduct.
// Beneficiaries are appended to the shop's beneficiary ledger and referenced
// by id on the stored product, in the order given here (payout order).
type ProductDefinition struct {
	TokenID       uint64
	NFTAddress    [20]byte
	NFTType       NFTType
	ProductType   ProductType
	Amount        *big.Int
	Price         *big.Int
	PaymentMethod PaymentMethod
	PaymentToken  [20]byte
	AffiliateBps  uint32
	Beneficiaries []*Beneficiary
}

// ShopInfo carries the identity and metadata of one marketplace instance. The
// owner is the producer for every product the shop sells; the manager is the
// off-chain key trusted to sign claim vouchers.
type ShopInfo struct {
	Address     [20]byte
	Owner       [20]byte
	Manager     [20]byte
	Name        string
	LogoURL     string
	Description string
}

// Params is the platform configuration consumed read-only at settlement time.
// It is injected explicitly so the engine stays testable in isolation.
type Params struct {
	FeeBps    uint32
	FeeWallet [20]byte
}

// SanitizeParams validates the platform parameters.
func SanitizeParams(p Params) (Params, error) {
	if p.FeeBps > BasisPoints {
		return Params{}, fmt.Errorf("catalog: platform fee bps out of range: %d", p.FeeBps)
	}
	return p, nil
}
