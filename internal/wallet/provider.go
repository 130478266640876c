package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gaiachat/internal/network"
)

// Provider error codes defined by EIP-1193 and EIP-3326.
const (
	CodeUserRejected  = 4001
	CodeChainNotAdded = 4902
)

// ProviderError is an RPC error returned by a wallet.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// IsChainNotAdded reports whether err means the wallet does not know the requested chain.
func IsChainNotAdded(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) && perr.Code == CodeChainNotAdded
}

// NativeCurrency is the wallet_addEthereumChain currency descriptor.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// AddChainParams is the wallet_addEthereumChain payload.
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

// AddChainParamsFor describes chain for wallet_addEthereumChain.
func AddChainParamsFor(chain network.Chain) AddChainParams {
	return AddChainParams{
		ChainID:   chain.HexChainID(),
		ChainName: chain.Name,
		NativeCurrency: NativeCurrency{
			Name:     chain.Currency.Name,
			Symbol:   chain.Currency.Symbol,
			Decimals: chain.Currency.Decimals,
		},
		RPCURLs:           chain.RPCURLs,
		BlockExplorerURLs: chain.BlockExplorerURLs,
	}
}

// Provider is an injected EVM wallet. Methods mirror eth_requestAccounts,
// eth_chainId, wallet_switchEthereumChain and wallet_addEthereumChain.
// Account and chain changes made inside the wallet are published on Events.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	ChainID(ctx context.Context) (int64, error)
	SwitchChain(ctx context.Context, hexChainID string) error
	AddChain(ctx context.Context, params AddChainParams) error
	Events() <-chan Event
}

// ParseHexChainID parses a 0x-prefixed chain id.
func ParseHexChainID(hex string) (int64, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(hex, "0x"), "0X")
	id, err := strconv.ParseInt(digits, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", hex, err)
	}
	return id, nil
}

const localEventBuffer = 64

// LocalProvider is an in-process wallet for terminal sessions and tests. It
// holds one account and knows a fixed set of chains until more are added.
type LocalProvider struct {
	mu       sync.Mutex
	accounts []string
	chainID  int64
	known    map[int64]bool
	events   chan Event
	closed   bool
}

// NewLocalProvider creates a wallet for address sitting on chainID. The
// current chain is always known; extra chains may be listed in known.
func NewLocalProvider(address string, chainID int64, known ...int64) *LocalProvider {
	p := &LocalProvider{
		chainID: chainID,
		known:   map[int64]bool{chainID: true},
		events:  make(chan Event, localEventBuffer),
	}
	if address != "" {
		p.accounts = []string{address}
	}
	for _, id := range known {
		p.known[id] = true
	}
	return p
}

// RequestAccounts returns the authorised accounts, or a user rejection when the wallet has none.
func (p *LocalProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.accounts) == 0 {
		return nil, &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
	}
	return append([]string(nil), p.accounts...), nil
}

// ChainID returns the active chain.
func (p *LocalProvider) ChainID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

// SwitchChain activates a known chain or fails with CodeChainNotAdded.
func (p *LocalProvider) SwitchChain(ctx context.Context, hexChainID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := ParseHexChainID(hexChainID)
	if err != nil {
		return &ProviderError{Code: -32602, Message: err.Error()}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.known[id] {
		return &ProviderError{Code: CodeChainNotAdded, Message: fmt.Sprintf("Unrecognized chain ID %q.", hexChainID)}
	}
	p.setChainLocked(id)
	return nil
}

// AddChain registers a chain and switches to it.
func (p *LocalProvider) AddChain(ctx context.Context, params AddChainParams) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := ParseHexChainID(params.ChainID)
	if err != nil {
		return &ProviderError{Code: -32602, Message: err.Error()}
	}
	if params.ChainName == "" || len(params.RPCURLs) == 0 {
		return &ProviderError{Code: -32602, Message: "chainName and rpcUrls are required"}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[id] = true
	p.setChainLocked(id)
	return nil
}

// Events streams account and chain changes.
func (p *LocalProvider) Events() <-chan Event { return p.events }

// SetAccounts simulates the user switching (or revoking) accounts in the wallet.
func (p *LocalProvider) SetAccounts(accounts ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = append([]string(nil), accounts...)
	p.emitLocked(Event{Kind: EventAccountsChanged, Accounts: append([]string(nil), accounts...)})
}

// SetChain simulates the user picking another chain in the wallet.
func (p *LocalProvider) SetChain(chainID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[chainID] = true
	p.setChainLocked(chainID)
}

// Close ends the event stream.
func (p *LocalProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
}

func (p *LocalProvider) setChainLocked(id int64) {
	if p.chainID == id {
		return
	}
	p.chainID = id
	p.emitLocked(Event{Kind: EventChainChanged, ChainID: id})
}

// emitLocked drops the event when nobody drains the stream.
func (p *LocalProvider) emitLocked(ev Event) {
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
	}
}
