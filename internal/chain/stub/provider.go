// Package stub provides a scripted in-memory chain.Provider for tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"solana-safety-engine/internal/chain"
)

// Provider implements chain.Provider from scripted maps. Zero-value lookups
// return chain.ErrNotFound; per-method errors can be injected via Errs.
type Provider struct {
	mu sync.Mutex

	Metadata    map[string]*chain.TokenMetadata
	Quotes      map[string]*chain.SwapQuote // keyed by "inputMint->outputMint"
	Authorities map[string]*chain.TokenAuthorities
	Holders     map[string][]chain.Holder
	Buyers      map[string][]chain.Buy
	Funding     map[string]string
	WalletAges  map[string]float64
	Markets     map[string]*chain.MarketSnapshot

	// Errs injects an error per method name ("GetSwapQuote", ...). Keys of
	// the form "method:arg" override for a single argument.
	Errs map[string]error

	// Calls counts invocations per method name.
	Calls map[string]int
}

// NewProvider creates an empty scripted provider.
func NewProvider() *Provider {
	return &Provider{
		Metadata:    make(map[string]*chain.TokenMetadata),
		Quotes:      make(map[string]*chain.SwapQuote),
		Authorities: make(map[string]*chain.TokenAuthorities),
		Holders:     make(map[string][]chain.Holder),
		Buyers:      make(map[string][]chain.Buy),
		Funding:     make(map[string]string),
		WalletAges:  make(map[string]float64),
		Markets:     make(map[string]*chain.MarketSnapshot),
		Errs:        make(map[string]error),
		Calls:       make(map[string]int),
	}
}

// QuoteKey builds the key Quotes is scripted under.
func QuoteKey(inputMint, outputMint string) string {
	return inputMint + "->" + outputMint
}

func (p *Provider) record(method, arg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls[method]++
	if err, ok := p.Errs[method+":"+arg]; ok {
		return err
	}
	return p.Errs[method]
}

// CallCount returns how many times method was invoked.
func (p *Provider) CallCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls[method]
}

func (p *Provider) GetTokenMetadata(_ context.Context, token string) (*chain.TokenMetadata, error) {
	if err := p.record("GetTokenMetadata", token); err != nil {
		return nil, err
	}
	m, ok := p.Metadata[token]
	if !ok {
		return nil, fmt.Errorf("%w: metadata for %s", chain.ErrNotFound, token)
	}
	return m, nil
}

func (p *Provider) GetSwapQuote(_ context.Context, inputMint, outputMint string, _ uint64) (*chain.SwapQuote, error) {
	key := QuoteKey(inputMint, outputMint)
	if err := p.record("GetSwapQuote", key); err != nil {
		return nil, err
	}
	q, ok := p.Quotes[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrNoRoute, key)
	}
	return q, nil
}

func (p *Provider) GetTokenAuthorities(_ context.Context, token string) (*chain.TokenAuthorities, error) {
	if err := p.record("GetTokenAuthorities", token); err != nil {
		return nil, err
	}
	a, ok := p.Authorities[token]
	if !ok {
		return nil, fmt.Errorf("%w: authorities for %s", chain.ErrNotFound, token)
	}
	return a, nil
}

func (p *Provider) GetTopHolders(_ context.Context, token string) ([]chain.Holder, error) {
	if err := p.record("GetTopHolders", token); err != nil {
		return nil, err
	}
	h, ok := p.Holders[token]
	if !ok {
		return nil, fmt.Errorf("%w: holders for %s", chain.ErrNotFound, token)
	}
	return h, nil
}

func (p *Provider) GetFirstBuyers(_ context.Context, token string, count int) ([]chain.Buy, error) {
	if err := p.record("GetFirstBuyers", token); err != nil {
		return nil, err
	}
	buys := p.Buyers[token]
	if len(buys) > count {
		buys = buys[:count]
	}
	return buys, nil
}

func (p *Provider) GetFundingSource(_ context.Context, wallet string) (string, error) {
	if err := p.record("GetFundingSource", wallet); err != nil {
		return "", err
	}
	return p.Funding[wallet], nil
}

func (p *Provider) GetWalletAgeDays(_ context.Context, wallet string) (float64, error) {
	if err := p.record("GetWalletAgeDays", wallet); err != nil {
		return 0, err
	}
	return p.WalletAges[wallet], nil
}

func (p *Provider) GetMarketSnapshot(_ context.Context, token string) (*chain.MarketSnapshot, error) {
	if err := p.record("GetMarketSnapshot", token); err != nil {
		return nil, err
	}
	m, ok := p.Markets[token]
	if !ok {
		return nil, fmt.Errorf("%w: market for %s", chain.ErrNotFound, token)
	}
	return m, nil
}
