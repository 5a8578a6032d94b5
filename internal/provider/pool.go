package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPoolExhausted means every provider account is at capacity.
	ErrPoolExhausted = errors.New("no provider account has free capacity")
	// ErrUnknownAccount means a connection references an account absent
	// from configuration.
	ErrUnknownAccount = errors.New("unknown provider account")
)

// Account is one upstream provider account: a base URL, its admin token,
// and how many instances it may carry.
type Account struct {
	Name           string `yaml:"name"`
	BaseURL        string `yaml:"base_url"`
	AdminToken     string `yaml:"admin_token"`
	MaxConnections int    `yaml:"max_connections"`
}

// LoadCounter reports current live-connection counts per account name.
type LoadCounter interface {
	CountConnectionsByAccount(ctx context.Context) (map[string]int, error)
}

// Pool holds the configured provider accounts and allocates new instances
// least-loaded first, picked explicitly rather than through a singleton.
type Pool struct {
	accounts []Account
	loads    LoadCounter
}

// NewPool creates a Pool over the configured accounts.
func NewPool(accounts []Account, loads LoadCounter) *Pool {
	return &Pool{accounts: accounts, loads: loads}
}

// Get returns the account with the given name.
func (p *Pool) Get(name string) (Account, error) {
	for _, a := range p.accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %q", ErrUnknownAccount, name)
}

// Allocate picks the account with the most free capacity (max minus current
// live connections). Accounts at or over capacity are skipped; a zero
// MaxConnections means unbounded.
func (p *Pool) Allocate(ctx context.Context) (Account, error) {
	if len(p.accounts) == 0 {
		return Account{}, ErrPoolExhausted
	}

	counts, err := p.loads.CountConnectionsByAccount(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("count account loads: %w", err)
	}

	best := -1
	bestFree := -1
	for i, a := range p.accounts {
		used := counts[a.Name]
		if a.MaxConnections > 0 && used >= a.MaxConnections {
			continue
		}
		free := int(^uint(0) >> 1) // unbounded
		if a.MaxConnections > 0 {
			free = a.MaxConnections - used
		}
		if free > bestFree {
			best = i
			bestFree = free
		}
	}
	if best < 0 {
		return Account{}, ErrPoolExhausted
	}
	return p.accounts[best], nil
}
