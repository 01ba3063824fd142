// Package schema validates serialized SimulationState snapshots against an
// embedded CUE definition before they are trusted by a storage tier.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed state.cue
var stateCUE string

// ErrInvalidState is returned for payloads that are not a valid snapshot.
var ErrInvalidState = errors.New("invalid simulation state")

// CUE values are not safe for concurrent use, so every evaluation runs under mu.
var (
	mu       sync.Mutex
	loadOnce sync.Once
	cueCtx   *cue.Context
	stateDef cue.Value
	loadErr  error
)

func load() {
	cueCtx = cuecontext.New()
	v := cueCtx.CompileString(stateCUE, cue.Filename("state.cue"))
	if err := v.Err(); err != nil {
		loadErr = fmt.Errorf("compile schema: %w", err)
		return
	}
	stateDef = v.LookupPath(cue.ParsePath("#SimulationState"))
	if !stateDef.Exists() {
		loadErr = fmt.Errorf("schema: #SimulationState not defined")
	}
}

// Validate checks that data is a JSON SimulationState matching the schema.
// Validation failures wrap ErrInvalidState.
func Validate(data []byte) error {
	mu.Lock()
	defer mu.Unlock()

	loadOnce.Do(load)
	if loadErr != nil {
		return loadErr
	}

	v := cueCtx.CompileBytes(data, cue.Filename("snapshot.json"))
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := stateDef.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return nil
}
