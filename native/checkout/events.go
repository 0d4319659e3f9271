package checkout

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"dropshop/core/types"
)

const (
	// EventTypeBatchSettled fires once every entry of a cross-shop batch
	// has settled.
	EventTypeBatchSettled = "checkout.batch.settled"
)

// NewBatchSettledEvent returns the canonical payload for a settled batch.
func NewBatchSettledEvent(buyer [20]byte, batch *Batch, total *big.Int) *types.Event {
	attrs := map[string]string{
		"buyer": hex.EncodeToString(buyer[:]),
	}
	if batch != nil {
		attrs["entries"] = strconv.Itoa(len(batch.Entries))
		if batch.PaymentToken != ([20]byte{}) {
			attrs["paymentToken"] = hex.EncodeToString(batch.PaymentToken[:])
		} else {
			attrs["paymentToken"] = "native"
		}
	}
	if total != nil {
		attrs["total"] = total.String()
	}
	return &types.Event{Type: EventTypeBatchSettled, Attributes: attrs}
}
