package vm

import (
	"errors"
	"testing"
)

// loadProgram places the given instruction bytes at BaseAddr and points
// RIP/RPP at it, mirroring what loader.Load would set up for a program
// with no PIT/argv preamble.
func loadProgram(t *testing.T, program []byte) *VM {
	t.Helper()
	mem := NewMemory(DefaultMemorySize, true)
	if err := mem.StoreBytes(BaseAddr, program); err != nil {
		t.Fatalf("StoreBytes: %v", err)
	}
	machine := New(mem)
	machine.Registers.SetIP(BaseAddr)
	machine.Registers.Set(RPP, BaseAddr)
	return machine
}

func asHalt(t *testing.T, err error) *HaltError {
	t.Helper()
	var h *HaltError
	if !errors.As(err, &h) {
		t.Fatalf("expected *HaltError, got %v (%T)", err, err)
	}
	return h
}

func instr(op byte, a1, a2, a3 byte) []byte {
	return []byte{OpcodeHighNibbleMask | op, a1, a2, a3}
}

// TestHaltWithStatus builds 42 into R0 across two ims instructions (high
// half first, low half second) and halts, expecting exit status 42.
func TestHaltWithStatus(t *testing.T) {
	program := append(append(
		instr(OpIms, 0x80, 0x00, 0x00), // R0 = 0x0000 (high half)
		instr(OpIms, 0x80, 0x2A, 0x00)...), // R0 = (R0<<16)|0x002A = 42
		instr(OpSys, SysHalt, 0x00, 0x00)...)

	machine := loadProgram(t, program)
	err := machine.Run()
	h := asHalt(t, err)
	if h.Code != 42 {
		t.Errorf("halt code = %d, want 42", h.Code)
	}
}

// TestImsBuildsFullConstant exercises the two-ims invariant directly:
// operands (hiLo, hiHi, loLo, loHi) to the same register yield
// (hiHi<<24)|(hiLo<<16)|(loHi<<8)|loLo.
func TestImsBuildsFullConstant(t *testing.T) {
	program := append(append(
		instr(OpIms, 0x80, 0xFF, 0xFF), // high half = 0xFFFF
		instr(OpIms, 0x80, 0xFF, 0xFF)...), // low half = 0xFFFF
		instr(OpSys, SysHalt, 0x00, 0x00)...)

	machine := loadProgram(t, program)
	_ = machine.Run()
	if got := machine.Registers.Get(0); got != 0xFFFFFFFF {
		t.Errorf("R0 = 0x%08X, want 0xFFFFFFFF", got)
	}
}

// TestArithmeticWraparound loads R0 with 0xFFFFFFFF then adds 1, expecting
// the result to wrap to 0 rather than fault or widen.
func TestArithmeticWraparound(t *testing.T) {
	program := append(append(
		instr(OpIms, 0x80, 0xFF, 0xFF),
		instr(OpIms, 0x80, 0xFF, 0xFF)...),
		instr(OpAdd, 0x80, 0x80, 0x01)...) // R0 = R0 + 1 (literal)
	program = append(program, instr(OpSys, SysHalt, 0x00, 0x00)...)

	machine := loadProgram(t, program)
	_ = machine.Run()
	if got := machine.Registers.Get(0); got != 0 {
		t.Errorf("R0 = 0x%08X, want 0", got)
	}
}

// TestJzForwardSkipsWhenPredicateZero checks that jz with a zero predicate
// jumps forward over a following instruction.
func TestJzForwardSkipsWhenPredicateZero(t *testing.T) {
	// jz 0x00 (predicate literal 0, always taken) displacement +1
	// instruction, skipping the add below; displacement units are 4
	// bytes (one instruction), so disp16 = 1.
	program := instr(OpJz, 0x00, 0x01, 0x00)
	program = append(program, instr(OpAdd, 0x80, 0x01, 0x01)...) // skipped: R0 = 1+1
	program = append(program, instr(OpIms, 0x80, 0x07, 0x00)...) // R0 = 7
	program = append(program, instr(OpSys, SysHalt, 0x00, 0x00)...)

	machine := loadProgram(t, program)
	err := machine.Run()
	h := asHalt(t, err)
	if h.Code != 7 {
		t.Errorf("halt code = %d, want 7 (jump should have skipped the add)", h.Code)
	}
}

// TestJzDoesNotJumpWhenPredicateNonZero checks the fallthrough case.
func TestJzDoesNotJumpWhenPredicateNonZero(t *testing.T) {
	program := instr(OpJz, 0x01, 0x02, 0x00) // predicate literal 1, never taken
	program = append(program, instr(OpIms, 0x80, 0x09, 0x00)...)
	program = append(program, instr(OpSys, SysHalt, 0x00, 0x00)...)

	machine := loadProgram(t, program)
	err := machine.Run()
	h := asHalt(t, err)
	if h.Code != 9 {
		t.Errorf("halt code = %d, want 9 (jump should not have been taken)", h.Code)
	}
}

// TestJzNegativeDisplacementLoops uses a negative displacement to jump
// backward, verifying sign extension of the 16-bit displacement field.
// jz jumps when its predicate is zero, so the loop body tests R1 == 0 to
// skip an unconditional backward jump (itself a jz on a literal-0
// predicate) once the counter bottoms out.
func TestJzNegativeDisplacementLoops(t *testing.T) {
	program := instr(OpIms, 0x81, 0x03, 0x00)        // 0: R1 = 3
	program = append(program, instr(OpSub, 0x81, 0x81, 0x01)...) // 1: R1 -= 1 (loop top)
	program = append(program, instr(OpJz, 0x81, 0x01, 0x00)...)  // 2: if R1 == 0, skip instr 3
	program = append(program, instr(OpJz, 0x00, 0xFD, 0xFF)...)  // 3: unconditional jump back to instr 1 (disp -3)
	program = append(program, instr(OpSys, SysHalt, 0x00, 0x00)...) // 4: halt

	machine := loadProgram(t, program)
	machine.MaxInstructions = 1000
	err := machine.Run()
	h := asHalt(t, err)
	if h.Code != 0 {
		t.Errorf("halt code = %d, want 0 (R0 untouched by the loop)", h.Code)
	}
	if got := machine.Registers.Get(1); got != 0 {
		t.Errorf("R1 = %d, want 0", got)
	}
}

func TestCmpuOrdering(t *testing.T) {
	cases := []struct {
		left, right byte
		want        uint32
	}{
		{0x01, 0x02, 0xFFFFFFFF}, // left < right
		{0x02, 0x01, 1},          // left > right
		{0x03, 0x03, 0},          // equal
	}
	for _, c := range cases {
		program := append(append(
			instr(OpIms, 0x80, c.left, 0x00),
			instr(OpIms, 0x81, c.right, 0x00)...),
			instr(OpCmpu, 0x82, 0x80, 0x81)...)
		program = append(program, instr(OpSys, SysHalt, 0x00, 0x00)...)

		machine := loadProgram(t, program)
		_ = machine.Run()
		if got := machine.Registers.Get(2); got != c.want {
			t.Errorf("cmpu(%d,%d) = 0x%X, want 0x%X", c.left, c.right, got, c.want)
		}
	}
}

func TestRorRotatesRight(t *testing.T) {
	program := append(append(
		instr(OpIms, 0x80, 0x01, 0x00), // R0 = 1
		instr(OpRor, 0x80, 0x80, 0x01)...), // R0 = ror(R0, 1)
		instr(OpSys, SysHalt, 0x00, 0x00)...)

	machine := loadProgram(t, program)
	_ = machine.Run()
	if got := machine.Registers.Get(0); got != 0x80000000 {
		t.Errorf("R0 = 0x%08X, want 0x80000000", got)
	}
}

func TestDivideByZeroFaults(t *testing.T) {
	program := append(
		instr(OpIms, 0x80, 0x05, 0x00), // R0 = 5
		instr(OpDivu, 0x80, 0x80, 0x00)...) // R0 / 0
	program = append(program, instr(OpSys, SysHalt, 0x00, 0x00)...)

	machine := loadProgram(t, program)
	err := machine.Run()
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FatalError on division by zero, got %v", err)
	}
}

func TestStoreAndLoadWord(t *testing.T) {
	// Compute an absolute address (BaseAddr via RPP, plus an offset) into
	// R1, store a literal through R0, then load it back into R2.
	prog := instr(OpIms, 0x81, 0x00, 0x00) // R1 = 0 (high half)
	prog = append(prog, instr(OpIms, 0x81, 0x00, 0x01)...) // R1 = (0<<16)|0x0100 = 0x100
	prog = append(prog, instr(OpAdd, 0x81, 0x81, 0x8E)...) // R1 = R1 + RPP (mix reg 0xE = RPP)
	prog = append(prog, instr(OpIms, 0x80, 0x37, 0x00)...) // R0 = 0x37
	prog = append(prog, instr(OpStw, 0x80, 0x81, 0x00)...) // mem[R1+0] = R0
	prog = append(prog, instr(OpLdw, 0x82, 0x81, 0x00)...) // R2 = mem[R1+0]
	prog = append(prog, instr(OpSys, SysHalt, 0x00, 0x00)...)

	machine := loadProgram(t, prog)
	_ = machine.Run()
	if got := machine.Registers.Get(2); got != 0x37 {
		t.Errorf("R2 = 0x%X, want 0x37", got)
	}
}
