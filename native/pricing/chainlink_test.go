package pricing

import (
	"bytes"
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// fakeCaller answers the two aggregator selectors with canned ABI payloads.
// rawAnswer, when set, overrides the encoded answer word.
type fakeCaller struct {
	decimals  uint8
	answer    *big.Int
	rawAnswer []byte
	updatedAt int64
	calls     int
}

func word(v *big.Int) []byte {
	out := make([]byte, 32)
	v.FillBytes(out)
	return out
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if bytes.Equal(msg.Data, selectorDecimals) {
		return word(big.NewInt(int64(f.decimals))), nil
	}
	answerWord := f.rawAnswer
	if answerWord == nil {
		answerWord = word(f.answer)
	}
	out := make([]byte, 0, 160)
	out = append(out, word(big.NewInt(7))...)           // roundId
	out = append(out, answerWord...)                    // answer
	out = append(out, word(big.NewInt(f.updatedAt))...) // startedAt
	out = append(out, word(big.NewInt(f.updatedAt))...) // updatedAt
	out = append(out, word(big.NewInt(7))...)           // answeredInRound
	return out, nil
}

func TestChainlinkFeedLatestRound(t *testing.T) {
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	caller := &fakeCaller{
		decimals:  8,
		answer:    big.NewInt(200000000000),
		updatedAt: updated.Unix(),
	}
	feed := NewChainlinkFeed(caller, common.Address{0x01}, time.Second)

	round, err := feed.LatestRound()
	if err != nil {
		t.Fatalf("latest round: %v", err)
	}
	if round.Price.Cmp(big.NewInt(200000000000)) != 0 {
		t.Fatalf("price %s", round.Price)
	}
	if round.Decimals != 8 {
		t.Fatalf("decimals %d", round.Decimals)
	}
	if !round.UpdatedAt.Equal(updated) {
		t.Fatalf("updatedAt %s", round.UpdatedAt)
	}

	// Decimals are cached: a second read issues one call, not two.
	callsBefore := caller.calls
	if _, err := feed.LatestRound(); err != nil {
		t.Fatalf("second round: %v", err)
	}
	if caller.calls != callsBefore+1 {
		t.Fatalf("expected cached decimals, saw %d extra calls", caller.calls-callsBefore)
	}
}

func TestChainlinkFeedRejectsNegativeAnswer(t *testing.T) {
	// int256(-1): every byte set, including the sign bit.
	caller := &fakeCaller{
		decimals:  8,
		rawAnswer: bytes.Repeat([]byte{0xff}, 32),
		updatedAt: time.Now().Unix(),
	}
	feed := NewChainlinkFeed(caller, common.Address{0x01}, time.Second)
	if _, err := feed.LatestRound(); err == nil {
		t.Fatal("expected negative answer to be rejected at the feed")
	}
}

func TestChainlinkFeedThroughAdapter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	caller := &fakeCaller{
		decimals:  8,
		answer:    big.NewInt(200000000000),
		updatedAt: now.Add(-2 * time.Hour).Unix(),
	}
	adapter := NewAdapter(NewChainlinkFeed(caller, common.Address{0x01}, time.Second), time.Hour)
	adapter.SetNowFunc(func() time.Time { return now })
	if _, err := adapter.LatestRound(); err == nil {
		t.Fatal("expected stale aggregator reading to be rejected")
	}
}
