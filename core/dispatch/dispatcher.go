// Package dispatch decides what vehicles should do next. Generators read a
// simulation snapshot and return instructions; they never modify state.
package dispatch

import (
	"fmt"

	"github.com/kilianp07/fleetsim/core/environment"
	"github.com/kilianp07/fleetsim/core/instruction"
	"github.com/kilianp07/fleetsim/core/simstate"
)

// Dispatcher produces the instructions for one tick.
type Dispatcher interface {
	Generate(sim *simstate.SimulationState, env *environment.Environment) ([]instruction.Instruction, error)
}

// Func adapts a function to Dispatcher.
type Func func(sim *simstate.SimulationState, env *environment.Environment) ([]instruction.Instruction, error)

func (f Func) Generate(sim *simstate.SimulationState, env *environment.Environment) ([]instruction.Instruction, error) {
	return f(sim, env)
}

// Nop issues nothing.
type Nop struct{}

func (Nop) Generate(*simstate.SimulationState, *environment.Environment) ([]instruction.Instruction, error) {
	return nil, nil
}

// Chain runs dispatchers in order. When two of them instruct the same vehicle
// the later one wins and takes the earlier one's place in the output.
type Chain []Dispatcher

func (c Chain) Generate(sim *simstate.SimulationState, env *environment.Environment) ([]instruction.Instruction, error) {
	var out []instruction.Instruction
	pos := make(map[string]int)
	for i, d := range c {
		ins, err := d.Generate(sim, env)
		if err != nil {
			return nil, fmt.Errorf("generator %d: %w", i, err)
		}
		for _, in := range ins {
			if p, ok := pos[in.VehicleID()]; ok {
				out[p] = in
				continue
			}
			pos[in.VehicleID()] = len(out)
			out = append(out, in)
		}
	}
	return out, nil
}

var generators = map[string]func(Config) (Dispatcher, error){
	GeneratorTrips:    func(c Config) (Dispatcher, error) { return NewTripAssignment(c) },
	GeneratorCharging: func(c Config) (Dispatcher, error) { return NewChargingFleetManager(c), nil },
	GeneratorBase:     func(c Config) (Dispatcher, error) { return NewBaseFleetManager(c), nil },
}

// New builds the configured generator chain.
func New(cfg Config) (Chain, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	chain := make(Chain, 0, len(cfg.Generators))
	for _, name := range cfg.Generators {
		d, err := generators[name](cfg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		chain = append(chain, d)
	}
	return chain, nil
}
