package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"gaiachat/internal/logger"
	"gaiachat/internal/network"
)

// ErrNoAccounts is returned when the wallet authorises no account.
var ErrNoAccounts = errors.New("wallet returned no accounts")

// Machine applies wallet events to the connection state and notifies watchers.
type Machine struct {
	chain    network.Chain
	provider Provider
	logger   *log.Logger

	applyMu  sync.Mutex
	mu       sync.RWMutex
	state    State
	watchers []func(prev, next State)
}

// NewMachine creates a disconnected machine for the supported chain.
func NewMachine(provider Provider, chain network.Chain) *Machine {
	return &Machine{
		chain:    chain,
		provider: provider,
		logger:   logger.NewStyledLogger("Wallet"),
	}
}

// Chain returns the supported chain.
func (m *Machine) Chain() network.Chain { return m.chain }

// State returns the current snapshot.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Watch registers fn to be called after every state change.
func (m *Machine) Watch(fn func(prev, next State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// Apply folds one event into the state and returns the new state.
// Watchers run after the state is published and may call State but not Apply.
func (m *Machine) Apply(ev Event) State {
	m.applyMu.Lock()
	defer m.applyMu.Unlock()

	m.mu.Lock()
	prev := m.state
	next := Transition(m.chain, prev, ev)
	m.state = next
	watchers := append([]func(prev, next State){}, m.watchers...)
	m.mu.Unlock()

	if prev == next {
		return next
	}
	m.logger.Debug("Wallet state changed", "event", ev.Kind, "from", prev.Status, "to", next.Status, "wallet", next.Address)
	for _, fn := range watchers {
		fn(prev, next)
	}
	return next
}

// Run consumes provider events until ctx is done or the stream closes.
func (m *Machine) Run(ctx context.Context) error {
	events := m.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Apply(ev)
		}
	}
}

// Connect requests account access and then moves the wallet onto the supported
// chain if needed. A failed switch leaves the machine in StatusWrongNetwork and
// returns the error; a failed account request returns it to StatusDisconnected.
func (m *Machine) Connect(ctx context.Context) error {
	m.Apply(Event{Kind: EventConnectRequested})

	accounts, err := m.provider.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = ErrNoAccounts
	}
	if err != nil {
		m.Apply(Event{Kind: EventConnectFailed, Err: err})
		return fmt.Errorf("failed to connect wallet: %w", err)
	}

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		m.Apply(Event{Kind: EventConnectFailed, Err: err})
		return fmt.Errorf("failed to read wallet chain: %w", err)
	}

	state := m.Apply(Event{Kind: EventConnected, Accounts: accounts, ChainID: chainID})
	m.logger.Info("Wallet connected", "wallet", state.Address, "chain", chainID)

	if state.Status == StatusWrongNetwork {
		return m.SwitchNetwork(ctx)
	}
	return nil
}

// SwitchNetwork asks the wallet to move to the supported chain, adding the
// chain first when the wallet does not know it.
func (m *Machine) SwitchNetwork(ctx context.Context) error {
	err := m.provider.SwitchChain(ctx, m.chain.HexChainID())
	if IsChainNotAdded(err) {
		m.logger.Info("Adding network to wallet", "chain", m.chain.Name)
		if addErr := m.provider.AddChain(ctx, AddChainParamsFor(m.chain)); addErr != nil {
			return fmt.Errorf("failed to add %s to the wallet, please add it manually: %w", m.chain.Name, addErr)
		}
		err = nil
	}
	if err != nil {
		return fmt.Errorf("failed to switch to %s: %w", m.chain.Name, err)
	}

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read wallet chain: %w", err)
	}
	m.Apply(Event{Kind: EventChainChanged, ChainID: chainID})
	return nil
}

// Disconnect forgets the connection. The wallet itself keeps the authorisation.
func (m *Machine) Disconnect() {
	m.Apply(Event{Kind: EventDisconnectRequested})
}
