// Package wallet tracks the connection between the chat client and a user's
// EVM wallet. Wallet activity arrives as Events; Transition folds them into a State.
package wallet

import (
	"fmt"

	"gaiachat/internal/network"
)

// Status is the coarse connection state.
type Status int

// Connection states.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusWrongNetwork
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusWrongNetwork:
		return "wrong-network"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// State is a snapshot of the wallet connection. Address and ChainID are only
// set while the wallet is connected (on any chain).
type State struct {
	Status  Status
	Address string
	ChainID int64
}

// IsConnected reports whether an account is authorised, whatever the chain.
func (s State) IsConnected() bool {
	return s.Status == StatusConnected || s.Status == StatusWrongNetwork
}

// Ready reports whether the wallet is connected on the supported chain.
func (s State) Ready() bool {
	return s.Status == StatusConnected
}

// ShortAddress abbreviates the account as 0x1234...abcd.
func (s State) ShortAddress() string {
	if len(s.Address) <= 10 {
		return s.Address
	}
	return s.Address[:6] + "..." + s.Address[len(s.Address)-4:]
}

// Label is the human readable connection status.
func (s State) Label(chain network.Chain) string {
	switch s.Status {
	case StatusConnecting:
		return "Connecting..."
	case StatusConnected:
		return fmt.Sprintf("Connected (%s)", chain.Name)
	case StatusWrongNetwork:
		return "Connected (Wrong Network)"
	default:
		return "Not connected"
	}
}

// EventKind identifies what happened.
type EventKind int

// Event kinds. ConnectRequested, ConnectFailed and DisconnectRequested come from
// the user; the rest are reported by the wallet.
const (
	EventConnectRequested EventKind = iota
	EventConnected
	EventConnectFailed
	EventAccountsChanged
	EventChainChanged
	EventDisconnectRequested
)

func (k EventKind) String() string {
	switch k {
	case EventConnectRequested:
		return "connect-requested"
	case EventConnected:
		return "connected"
	case EventConnectFailed:
		return "connect-failed"
	case EventAccountsChanged:
		return "accounts-changed"
	case EventChainChanged:
		return "chain-changed"
	case EventDisconnectRequested:
		return "disconnect-requested"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one input to the state machine.
type Event struct {
	Kind     EventKind
	Accounts []string
	ChainID  int64
	Err      error
}

// Transition returns the state that follows s after ev, given the supported chain.
func Transition(chain network.Chain, s State, ev Event) State {
	switch ev.Kind {
	case EventConnectRequested:
		if s.Status == StatusDisconnected {
			return State{Status: StatusConnecting}
		}
		return s

	case EventConnected:
		if len(ev.Accounts) == 0 {
			return State{Status: StatusDisconnected}
		}
		return settle(chain, ev.Accounts[0], ev.ChainID)

	case EventConnectFailed:
		if s.Status == StatusConnecting {
			return State{Status: StatusDisconnected}
		}
		return s

	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			return State{Status: StatusDisconnected}
		}
		// Account switches only matter once the user has connected.
		if !s.IsConnected() {
			return s
		}
		return settle(chain, ev.Accounts[0], s.ChainID)

	case EventChainChanged:
		if !s.IsConnected() {
			return s
		}
		return settle(chain, s.Address, ev.ChainID)

	case EventDisconnectRequested:
		return State{Status: StatusDisconnected}
	}
	return s
}

func settle(chain network.Chain, address string, chainID int64) State {
	status := StatusWrongNetwork
	if chain.MatchesChainID(chainID) {
		status = StatusConnected
	}
	return State{Status: status, Address: address, ChainID: chainID}
}
