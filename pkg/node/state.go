package node

import "github.com/ryandielhenn/cloudheal/pkg/lifecycle"

type State = lifecycle.State

const (
	StateRunning  = lifecycle.StateRunning
	StateStopping = lifecycle.StateStopping
	StateStopped  = lifecycle.StateStopped
)
