package connector

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/Layr-Labs/evm-predicate-connector-go/pkg/types"
)

// State is the connection state of a Connector
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// bridgeState guards the one-time subscription to provider notifications
type bridgeState int

const (
	bridgeUnset bridgeState = iota
	bridgeSettingUp
	bridgeReady
)

// pairing relates an external account to its derived predicate account
type pairing struct {
	External common.Address
	Derived  types.Address
}

// Network describes the target chain the connector submits to
type Network struct {
	URL     string `json:"url"`
	ChainId uint64 `json:"chainId"`
}

// Version reports the connector's app and network versions
type Version struct {
	App     string `json:"app"`
	Network string `json:"network"`
}

// Event is one of AccountsChanged, ConnectionChanged or CurrentAccountChanged
type Event interface {
	eventName() string
}

// AccountsChanged carries the derived accounts after the external account list changed
type AccountsChanged struct {
	Accounts []types.Address
}

// ConnectionChanged reports whether at least one external account is authorized
type ConnectionChanged struct {
	Connected bool
}

// CurrentAccountChanged carries the derived account of the external wallet's selected
// account, or nil when there is none.
type CurrentAccountChanged struct {
	Account *types.Address
}

func (AccountsChanged) eventName() string       { return "accounts" }
func (ConnectionChanged) eventName() string     { return "connection" }
func (CurrentAccountChanged) eventName() string { return "currentAccount" }

// EventName returns the wire name of an event: accounts, connection or currentAccount
func EventName(e Event) string {
	return e.eventName()
}
