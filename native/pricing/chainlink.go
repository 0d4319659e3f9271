package pricing

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Chainlink AggregatorV3Interface selectors.
var (
	selectorLatestRoundData = []byte{0xfe, 0xaf, 0x96, 0x8c}
	selectorDecimals        = []byte{0x31, 0x3c, 0xe5, 0x67}
)

// ContractCaller is the read-only contract surface the feed needs. Satisfied
// by *ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainlinkFeed reads a Chainlink AggregatorV3 price feed over JSON-RPC. The
// decimals value is immutable on the aggregator and cached after first read.
type ChainlinkFeed struct {
	caller  ContractCaller
	feed    common.Address
	timeout time.Duration

	mu       sync.Mutex
	decimals uint8
	cached   bool
}

// NewChainlinkFeed constructs a feed reader over an existing caller.
func NewChainlinkFeed(caller ContractCaller, feed common.Address, timeout time.Duration) *ChainlinkFeed {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChainlinkFeed{caller: caller, feed: feed, timeout: timeout}
}

// DialChainlinkFeed connects to the given JSON-RPC endpoint and wraps the
// aggregator at feedAddr.
func DialChainlinkFeed(rpcURL, feedAddr string, timeout time.Duration) (*ChainlinkFeed, error) {
	if !common.IsHexAddress(feedAddr) {
		return nil, fmt.Errorf("pricing: invalid feed address %q", feedAddr)
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("pricing: dial %s: %w", rpcURL, err)
	}
	return NewChainlinkFeed(client, common.HexToAddress(feedAddr), timeout), nil
}

func (c *ChainlinkFeed) call(ctx context.Context, selector []byte) ([]byte, error) {
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.feed, Data: selector}, nil)
	if err != nil {
		return nil, fmt.Errorf("pricing: call aggregator: %w", err)
	}
	return out, nil
}

func (c *ChainlinkFeed) readDecimals(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached {
		return c.decimals, nil
	}
	out, err := c.call(ctx, selectorDecimals)
	if err != nil {
		return 0, err
	}
	if len(out) != 32 {
		return 0, fmt.Errorf("pricing: decimals returned %d bytes", len(out))
	}
	c.decimals = out[31]
	c.cached = true
	return c.decimals, nil
}

// LatestRound implements PriceFeed against the live aggregator.
func (c *ChainlinkFeed) LatestRound() (Round, error) {
	if c == nil || c.caller == nil {
		return Round{}, fmt.Errorf("pricing: chainlink feed not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	decimals, err := c.readDecimals(ctx)
	if err != nil {
		return Round{}, err
	}
	out, err := c.call(ctx, selectorLatestRoundData)
	if err != nil {
		return Round{}, err
	}
	// (uint80 roundId, int256 answer, uint256 startedAt, uint256 updatedAt,
	// uint80 answeredInRound)
	if len(out) != 160 {
		return Round{}, fmt.Errorf("pricing: latestRoundData returned %d bytes", len(out))
	}
	// answer is an int256; a set sign bit means the aggregator published a
	// negative price, which is a feed malfunction, not a conversion input.
	if out[32]&0x80 != 0 {
		return Round{}, fmt.Errorf("pricing: aggregator returned negative answer")
	}
	answer := new(big.Int).SetBytes(out[32:64])
	updatedAt := new(big.Int).SetBytes(out[96:128])
	if !updatedAt.IsInt64() {
		return Round{}, fmt.Errorf("pricing: updatedAt out of range")
	}
	return Round{
		Price:     answer,
		Decimals:  decimals,
		UpdatedAt: time.Unix(updatedAt.Int64(), 0),
	}, nil
}
