package airdrop

import (
	"encoding/hex"
	"strconv"

	"dropshop/core/types"
)

const (
	// EventTypeDistributed fires once per settled distribution batch.
	EventTypeDistributed = "airdrop.distributed"
)

// NewDistributedEvent returns the canonical payload for a settled batch,
// carrying the caller-supplied memo for off-chain bookkeeping.
func NewDistributedEvent(standard string, sender, token [20]byte, recipients int, memo string) *types.Event {
	return &types.Event{
		Type: EventTypeDistributed,
		Attributes: map[string]string{
			"standard":   standard,
			"sender":     hex.EncodeToString(sender[:]),
			"token":      hex.EncodeToString(token[:]),
			"recipients": strconv.Itoa(recipients),
			"memo":       memo,
		},
	}
}
