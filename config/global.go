package config

import (
	"github.com/olebedev/emitter"
	"github.com/reviewos/kit/pkgs/logger"
)

// Event topics published on the global bus
const (
	EvtChangeCreated = "change.created"
	EvtChangeUpdated = "change.updated"
	EvtChangeMerged  = "change.merged"
	EvtBranchPushed  = "branch.pushed"
)

// Globals holds references to global objects
type Globals struct {
	Log logger.Logger
	Bus *emitter.Emitter
}

// G returns the global object
func (c *AppConfig) G() *Globals {
	return c.g
}
