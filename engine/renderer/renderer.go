package renderer

import (
	"fmt"

	"github.com/oxyengine/oxygen/engine/core"
)

type BackendType uint8

const (
	Headless BackendType = iota
	D3D12
)

// Factory for a concrete backend, registered by the backend package at
// engine init. Keeps the core free of backend imports.
type BackendFactory func() (Graphics, error)

var factories = map[BackendType]BackendFactory{}

func RegisterBackend(t BackendType, f BackendFactory) {
	factories[t] = f
}

// NewGraphics selects and instantiates the configured backend.
func NewGraphics(t BackendType) (Graphics, error) {
	f, ok := factories[t]
	if !ok {
		err := fmt.Errorf("no graphics backend registered for type %d", t)
		core.LogError(err.Error())
		return nil, err
	}
	return f()
}
