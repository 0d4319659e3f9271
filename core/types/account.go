package types

import "math/big"

// Account tracks the funds held by a single marketplace participant. Balance
// is the native coin balance in wei; Tokens holds ERC20-style balances keyed
// by the lowercase hex encoding of the token contract address.
type Account struct {
	Nonce   uint64              `json:"nonce"`
	Balance *big.Int            `json:"balance"`
	Tokens  map[string]*big.Int `json:"tokens,omitempty"`
}

// EnsureAccount normalises a possibly-nil account into a usable value with
// non-nil balance fields.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return &Account{Balance: big.NewInt(0), Tokens: make(map[string]*big.Int)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	if acc.Tokens == nil {
		acc.Tokens = make(map[string]*big.Int)
	}
	return acc
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return EnsureAccount(nil)
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0), Tokens: make(map[string]*big.Int, len(a.Tokens))}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	for token, amt := range a.Tokens {
		if amt == nil {
			clone.Tokens[token] = big.NewInt(0)
			continue
		}
		clone.Tokens[token] = new(big.Int).Set(amt)
	}
	return clone
}

// TokenBalance returns the balance held for the given token key, never nil.
func (a *Account) TokenBalance(token string) *big.Int {
	if a == nil || a.Tokens == nil {
		return big.NewInt(0)
	}
	if amt, ok := a.Tokens[token]; ok && amt != nil {
		return new(big.Int).Set(amt)
	}
	return big.NewInt(0)
}
