package catalog

import (
	"fmt"
	"math/big"
)

// Payout is one concrete transfer produced by the split computation.
type Payout struct {
	Wallet [20]byte
	Amount *big.Int
}

// Split is a disjoint partition of a gross payment. The four share categories
// always sum exactly to Gross; integer-division truncation accrues to the
// producer remainder, never to a shortfall in platform or beneficiary funds.
type Split struct {
	Gross            *big.Int
	Platform         *big.Int
	Affiliate        *big.Int
	Beneficiaries    []Payout
	BeneficiaryTotal *big.Int
	Producer         *big.Int
}

// ComputeSplit partitions gross between the platform, an optional confirmed
// affiliate, the product's beneficiaries (in registration order) and the
// producer. Percentage shares use the fixed 1/10000 basis; absolute
// beneficiary values are taken verbatim in the payment currency. The producer
// receives the remainder; if the remainder underflows the split is
// oversubscribed and the whole computation fails.
func ComputeSplit(gross *big.Int, params Params, affiliateBps uint32, affiliateConfirmed bool, beneficiaries []*Beneficiary) (*Split, error) {
	if gross == nil || gross.Sign() <= 0 {
		return nil, fmt.Errorf("catalog: gross must be positive")
	}
	if _, err := SanitizeParams(params); err != nil {
		return nil, err
	}
	if affiliateBps > BasisPoints {
		return nil, fmt.Errorf("catalog: affiliate bps out of range: %d", affiliateBps)
	}

	basis := big.NewInt(BasisPoints)
	platform := new(big.Int).Mul(gross, new(big.Int).SetUint64(uint64(params.FeeBps)))
	platform.Div(platform, basis)

	affiliate := big.NewInt(0)
	if affiliateConfirmed && affiliateBps > 0 {
		affiliate = new(big.Int).Mul(gross, new(big.Int).SetUint64(uint64(affiliateBps)))
		affiliate.Div(affiliate, basis)
	}

	payouts := make([]Payout, 0, len(beneficiaries))
	beneficiaryTotal := big.NewInt(0)
	for _, b := range beneficiaries {
		sanitized, err := SanitizeBeneficiary(b)
		if err != nil {
			return nil, err
		}
		var share *big.Int
		if sanitized.IsPercentage {
			share = new(big.Int).Mul(gross, sanitized.Value)
			share.Div(share, basis)
		} else {
			share = new(big.Int).Set(sanitized.Value)
		}
		beneficiaryTotal.Add(beneficiaryTotal, share)
		payouts = append(payouts, Payout{Wallet: sanitized.Wallet, Amount: share})
	}

	producer := new(big.Int).Set(gross)
	producer.Sub(producer, platform)
	producer.Sub(producer, affiliate)
	producer.Sub(producer, beneficiaryTotal)
	if producer.Sign() < 0 {
		return nil, ErrOversubscribedSplit
	}

	return &Split{
		Gross:            new(big.Int).Set(gross),
		Platform:         platform,
		Affiliate:        affiliate,
		Beneficiaries:    payouts,
		BeneficiaryTotal: beneficiaryTotal,
		Producer:         producer,
	}, nil
}
