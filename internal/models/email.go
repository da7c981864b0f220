package models

import (
	"sync/atomic"
)

// EmailAccount is a sender address used to fill signup forms
type EmailAccount struct {
	Address string `json:"address"`
}

// EmailPool is a fixed ordered sequence of sender addresses consumed
// round-robin via a monotonic index modulo pool size. The slice is
// read-only after construction so concurrent Next calls only contend on
// the index counter.
type EmailPool struct {
	accounts []EmailAccount
	index    atomic.Int64
}

// NewEmailPool creates a rotation pool over the given accounts
func NewEmailPool(accounts []EmailAccount) *EmailPool {
	return &EmailPool{accounts: accounts}
}

// Next returns the next address in rotation
func (p *EmailPool) Next() EmailAccount {
	i := p.index.Add(1) - 1
	return p.accounts[int(i%int64(len(p.accounts)))]
}

// Peek returns the address that position i in the rotation maps to,
// without consuming it
func (p *EmailPool) Peek(i int) EmailAccount {
	return p.accounts[i%len(p.accounts)]
}

// Len returns the pool size
func (p *EmailPool) Len() int {
	return len(p.accounts)
}
