// Package loader builds the initial VM memory image: the process info
// table, argv/envp/cwd strings, the halt trampoline, and the program
// image itself.
package loader

import (
	"fmt"
	"os"

	"github.com/onramp-run/onramp-vm/vm"
)

// headerSkipBytes is the size of a shebang/REM wrapper header to skip at
// the front of a program file.
const headerSkipBytes = 128

// Result carries the addresses the caller needs after loading, mainly for
// diagnostics and for the debugger/API surfaces to label regions of memory.
type Result struct {
	TableAddress   uint32
	HaltAddress    uint32
	ProgramAddress uint32
	ProgramBreak   uint32
}

// Load reads programPath and constructs the initial image in mem, then
// initializes regs to point at it. argv[0] is programPath; args are any
// additional guest command-line arguments. envp is the process
// environment to export, cwd the guest's working directory string.
func Load(mem *vm.Memory, regs *vm.Registers, programPath string, args []string, envp []string, cwd string) (*Result, error) {
	program, err := os.ReadFile(programPath)
	if err != nil {
		return nil, fmt.Errorf("reading program file: %w", err)
	}

	w := &writer{mem: mem, pos: vm.BaseAddr}

	tableAddress := w.pos
	w.pos += vm.PITSize

	argv := append([]string{programPath}, args...)
	argvAddress, err := w.writeStringTable(argv)
	if err != nil {
		return nil, err
	}

	envpAddress, err := w.writeStringTable(envp)
	if err != nil {
		return nil, err
	}

	cwdAddress, err := w.writeString(cwd)
	if err != nil {
		return nil, err
	}
	w.align4()

	haltAddress := w.pos
	if err := w.writeWord(0x0000007F); err != nil { // sys 0, i.e. `halt`
		return nil, err
	}

	programAddress := w.pos
	if err := w.writeBytes(program); err != nil {
		return nil, err
	}
	entryAddress := programAddress
	if hasScriptHeader(program) {
		entryAddress += headerSkipBytes
	}

	programBreak := w.pos

	if err := writePIT(mem, tableAddress, pitFields{
		ProgramBreak: programBreak,
		HaltAddress:  haltAddress,
		ArgvAddress:  argvAddress,
		EnvpAddress:  envpAddress,
		CwdAddress:   cwdAddress,
	}); err != nil {
		return nil, err
	}

	for i := 0; i < vm.NumRegisters; i++ {
		regs.Set(i, 0)
	}
	regs.Set(0, tableAddress)
	regs.SetPP(entryAddress)
	regs.SetIP(entryAddress)
	regs.SetSP(vm.BaseAddr + uint32(len(mem.Data)))

	return &Result{
		TableAddress:   tableAddress,
		HaltAddress:    haltAddress,
		ProgramAddress: entryAddress,
		ProgramBreak:   programBreak,
	}, nil
}

// hasScriptHeader reports whether program begins with a `#!` or `REM`
// wrapper header that should be skipped.
func hasScriptHeader(program []byte) bool {
	if len(program) >= 2 && program[0] == '#' && program[1] == '!' {
		return true
	}
	if len(program) >= 3 && program[0] == 'R' && program[1] == 'E' && program[2] == 'M' {
		return true
	}
	return false
}

type pitFields struct {
	ProgramBreak uint32
	HaltAddress  uint32
	ArgvAddress  uint32
	EnvpAddress  uint32
	CwdAddress   uint32
}

// writePIT populates the 40-byte process info table
func writePIT(mem *vm.Memory, base uint32, f pitFields) error {
	fields := []struct {
		offset uint32
		value  uint32
	}{
		{vm.PITVersion, 0},
		{vm.PITBreak, f.ProgramBreak},
		{vm.PITHaltAddr, f.HaltAddress},
		{vm.PITStdinHandle, vm.HandleStdin},
		{vm.PITStdoutHandle, vm.HandleStdout},
		{vm.PITStderrHandle, vm.HandleStderr},
		{vm.PITArgvAddr, f.ArgvAddress},
		{vm.PITEnvpAddr, f.EnvpAddress},
		{vm.PITCwdAddr, f.CwdAddress},
		{vm.PITCaps, 0},
	}
	for _, field := range fields {
		if err := mem.StoreWord(base+field.offset, field.value); err != nil {
			return fmt.Errorf("writing process info table: %w", err)
		}
	}
	return nil
}

// writer is a bump-pointer cursor into the VM image, mirroring the
// reference loader's `pos` variable.
type writer struct {
	mem *vm.Memory
	pos uint32
}

func (w *writer) align4() {
	w.pos = (w.pos + 3) &^ 3
}

func (w *writer) writeBytes(data []byte) error {
	if err := w.mem.StoreBytes(w.pos, data); err != nil {
		return fmt.Errorf("writing image bytes: %w", err)
	}
	w.pos += uint32(len(data))
	return nil
}

func (w *writer) writeWord(value uint32) error {
	if err := w.mem.StoreWord(w.pos, value); err != nil {
		return fmt.Errorf("writing image word: %w", err)
	}
	w.pos += 4
	return nil
}

// writeString copies a NUL-terminated UTF-8 string and returns its address.
func (w *writer) writeString(s string) (uint32, error) {
	addr := w.pos
	if err := w.writeBytes(append([]byte(s), 0)); err != nil {
		return 0, err
	}
	return addr, nil
}

// writeStringTable writes a null-terminated table of pointers followed by
// the string bodies, then realigns to 4 bytes.
func (w *writer) writeStringTable(strs []string) (uint32, error) {
	tableAddress := w.pos
	w.pos += uint32(len(strs)+1) * 4

	addresses := make([]uint32, len(strs))
	for i, s := range strs {
		addr, err := w.writeString(s)
		if err != nil {
			return 0, err
		}
		addresses[i] = addr
	}

	for i, addr := range addresses {
		if err := w.mem.StoreWord(tableAddress+uint32(i)*4, addr); err != nil {
			return 0, fmt.Errorf("writing string table entry: %w", err)
		}
	}
	if err := w.mem.StoreWord(tableAddress+uint32(len(strs))*4, 0); err != nil {
		return 0, fmt.Errorf("writing string table terminator: %w", err)
	}
	w.align4()

	return tableAddress, nil
}
