package core

import "github.com/dkeye/Talkie/internal/domain"

type FailureAction int

const (
	NoAction FailureAction = iota
	Evict
	EvictAndClose
)

// Policy decides what happens to a connection that failed a delivery.
type Policy interface {
	OnDeliveryFailure(conn domain.Connection, err error) FailureAction
}

// SimplePolicy drops the connection from the registry and closes its transport.
type SimplePolicy struct{}

func (SimplePolicy) OnDeliveryFailure(domain.Connection, error) FailureAction {
	return EvictAndClose
}

type PolicyFunc func(conn domain.Connection, err error) FailureAction

func (f PolicyFunc) OnDeliveryFailure(conn domain.Connection, err error) FailureAction {
	return f(conn, err)
}
