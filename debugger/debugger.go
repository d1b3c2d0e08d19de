// Package debugger is a terminal UI for single-stepping an Onramp VM:
// a tcell/tview register and memory inspector. Breakpoints are a
// host-side convenience: they watch RIP between instructions and never
// affect guest semantics.
package debugger

import (
	"fmt"

	"github.com/onramp-run/onramp-vm/vm"
)

// state is the debugger's own notion of VM status, distinct from the
// guest-visible state: the guest never observes "paused at a breakpoint".
type state int

const (
	stateRunning state = iota
	statePaused
	stateHalted
	stateFaulted
)

// Debugger drives a vm.VM under interactive control.
type Debugger struct {
	VM          *vm.VM
	Breakpoints map[uint32]bool

	state    state
	exitCode int
	lastErr  error
	history  []string
}

// New creates a Debugger wrapping an already-loaded VM.
func New(machine *vm.VM) *Debugger {
	return &Debugger{
		VM:          machine,
		Breakpoints: make(map[uint32]bool),
		state:       statePaused,
	}
}

// ToggleBreakpoint flips whether RIP==addr pauses execution.
func (d *Debugger) ToggleBreakpoint(addr uint32) {
	if d.Breakpoints[addr] {
		delete(d.Breakpoints, addr)
	} else {
		d.Breakpoints[addr] = true
	}
}

// StepOne executes exactly one instruction and updates debugger state.
func (d *Debugger) StepOne() {
	if d.state == stateHalted || d.state == stateFaulted {
		return
	}
	err := d.VM.Step()
	d.recordOutcome(err)
}

// Continue runs instructions until a breakpoint, halt, or fault.
func (d *Debugger) Continue() {
	for d.state != stateHalted && d.state != stateFaulted {
		err := d.VM.Step()
		if d.recordOutcome(err) {
			return
		}
		if d.Breakpoints[d.VM.Registers.IP()] {
			d.state = statePaused
			d.history = append(d.history, fmt.Sprintf("breakpoint hit at 0x%08X", d.VM.Registers.IP()))
			return
		}
	}
}

// recordOutcome updates state after a Step call; it returns true if
// execution should stop (halt or fault).
func (d *Debugger) recordOutcome(err error) bool {
	if err == nil {
		return false
	}
	if halt, ok := err.(*vm.HaltError); ok {
		d.state = stateHalted
		d.exitCode = int(halt.Code)
		d.history = append(d.history, fmt.Sprintf("halted with status %d", halt.Code))
		return true
	}
	d.state = stateFaulted
	d.lastErr = err
	d.exitCode = vm.FaultExitCode
	d.history = append(d.history, fmt.Sprintf("fault: %v", err))
	return true
}

// ExitCode returns the process exit code once execution has stopped.
func (d *Debugger) ExitCode() int {
	return d.exitCode
}

// History returns the log of debugger-observed events, most recent last.
func (d *Debugger) History() []string {
	return d.history
}
