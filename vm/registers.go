package vm

// Registers is the VM's file of 16 32-bit registers. All
// arithmetic on register contents is modulo 2^32; Go's uint32 wraparound
// gives us this for free.
type Registers struct {
	r [NumRegisters]uint32
}

// Get returns the current value of register i.
func (r *Registers) Get(i int) uint32 {
	return r.r[i]
}

// Set stores value into register i.
func (r *Registers) Set(i int, value uint32) {
	r.r[i] = value
}

// SP returns the stack pointer (R12).
func (r *Registers) SP() uint32 { return r.r[RSP] }

// SetSP sets the stack pointer (R12).
func (r *Registers) SetSP(v uint32) { r.r[RSP] = v }

// FP returns the frame pointer (R13).
func (r *Registers) FP() uint32 { return r.r[RFP] }

// PP returns the program pointer (R14).
func (r *Registers) PP() uint32 { return r.r[RPP] }

// SetPP sets the program pointer (R14).
func (r *Registers) SetPP(v uint32) { r.r[RPP] = v }

// IP returns the instruction pointer (R15).
func (r *Registers) IP() uint32 { return r.r[RIP] }

// SetIP sets the instruction pointer (R15).
func (r *Registers) SetIP(v uint32) { r.r[RIP] = v }

// AdvanceIP advances the instruction pointer by one instruction (4 bytes).
func (r *Registers) AdvanceIP() { r.r[RIP] += 4 }

// Snapshot copies the current register contents out, for tracing/debugging
// surfaces that must not alias live VM state.
func (r *Registers) Snapshot() [NumRegisters]uint32 {
	return r.r
}
