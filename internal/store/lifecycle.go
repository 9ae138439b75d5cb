package store

import (
	"context"
	"fmt"

	loopfsm "github.com/looplab/fsm"
)

type slotState string

const (
	stateEmpty    slotState = "empty"
	stateWritten  slotState = "written"
	stateConsumed slotState = "consumed"
)

type slotEvent string

const (
	eventWrite   slotEvent = "write"
	eventConsume slotEvent = "consume"
)

// Expiry is not an event: expired slots are removed from the map in any
// state.
var slotEvents = []loopfsm.EventDesc{
	{Name: string(eventWrite), Src: []string{string(stateEmpty)}, Dst: string(stateWritten)},
	{Name: string(eventConsume), Src: []string{string(stateWritten)}, Dst: string(stateConsumed)},
}

// apply moves the slot to the state reached by event, using a machine
// seeded with the slot's current state. The caller must hold the store lock.
func (s *slot) apply(event slotEvent) error {
	machine := loopfsm.NewFSM(string(s.state), slotEvents, nil)
	if err := machine.Event(context.Background(), string(event)); err != nil {
		return fmt.Errorf("event '%s' is not valid from state '%s': %w", event, s.state, err)
	}
	s.state = slotState(machine.Current())
	return nil
}
