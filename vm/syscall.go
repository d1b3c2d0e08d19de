package vm

import (
	"errors"
	"io"
	"os"
	"time"
)

// Error handling philosophy:
//
// 1. VM-fatal errors: invalid opcode, bad register operand,
//    unimplemented syscall, divide-by-zero, and any file operation
//    designated fatal (fwrite/fseek/fclose errors) return a *FatalError
//    and stop the VM with FaultExitCode.
//
// 2. Guest-visible errors: fopen/unlink/chmod return a sentinel value in
//    R0 and execution continues; the guest is expected to check it.

// syscall dispatches one `sys` instruction by number.
func (vm *VM) syscall(number uint32) error {
	switch number {
	case SysHalt:
		return &HaltError{Code: uint8(vm.Registers.Get(0) & 0xFF)}
	case SysTime:
		return vm.sysTime()
	case SysSpawn:
		return fatalf("spawn syscall is not implemented")
	case SysFopen:
		return vm.sysFopen()
	case SysFclose:
		return vm.sysFclose()
	case SysRead:
		return vm.sysRead()
	case SysFwrite:
		return vm.sysFwrite()
	case SysFseek:
		return vm.sysFseek()
	case SysFtell:
		return vm.sysFtell()
	case SysFtrunc:
		return vm.sysFtrunc()
	case SysUnlink:
		return vm.sysUnlink()
	case SysChmod:
		return vm.sysChmod()
	default:
		return fatalf("unimplemented syscall: 0x%02X", number)
	}
}

// sysTime writes the current wall-clock time as two consecutive 32-bit
// words at R0 (seconds low, seconds high), then immediately overwrites
// the first word with nanoseconds-within-second. Because that value is
// computed from seconds already truncated to whole seconds, the
// overwritten word is always zero. Preserved as-is rather than fixed.
func (vm *VM) sysTime() error {
	addr := vm.Registers.Get(0)
	now := time.Now()
	seconds := now.Unix()

	if err := vm.Memory.StoreWord(addr, uint32(seconds)); err != nil {
		return fatalf("time: %v", err)
	}
	if err := vm.Memory.StoreWord(addr+4, uint32(seconds>>32)); err != nil {
		return fatalf("time: %v", err)
	}
	nanosWithinSecond := uint32((seconds * int64(time.Second)) % int64(time.Second))
	if err := vm.Memory.StoreWord(addr, nanosWithinSecond); err != nil {
		return fatalf("time: %v", err)
	}

	vm.Registers.Set(0, 0)
	return nil
}

func (vm *VM) getFile(handle uint32) (*os.File, error) {
	vm.fdMu.Lock()
	defer vm.fdMu.Unlock()
	if handle >= NumHandles {
		return nil, errors.New("bad file handle")
	}
	f := vm.files[handle]
	if f == nil && handle <= HandleStderr {
		switch handle {
		case HandleStdin:
			vm.files[HandleStdin] = os.Stdin
		case HandleStdout:
			vm.files[HandleStdout] = os.Stdout
		case HandleStderr:
			vm.files[HandleStderr] = os.Stderr
		}
		f = vm.files[handle]
	}
	if f == nil {
		return nil, errors.New("bad file handle")
	}
	return f, nil
}

// allocHandle returns the lowest empty slot at or above HandleStderr+1, or
// ErrGeneric if the table is exhausted.
func (vm *VM) allocHandle(f *os.File) uint32 {
	vm.fdMu.Lock()
	defer vm.fdMu.Unlock()
	for i := HandleStderr + 1; i < NumHandles; i++ {
		if vm.files[i] == nil {
			vm.files[i] = f
			return uint32(i)
		}
	}
	return ErrGeneric
}

func (vm *VM) sysFopen() error {
	path, err := vm.Memory.LoadString(vm.Registers.Get(0))
	if err != nil {
		return fatalf("fopen: %v", err)
	}
	writing := vm.Registers.Get(1) != 0

	var f *os.File
	if writing {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	} else {
		f, err = os.Open(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			vm.Registers.Set(0, ErrPath)
			return nil
		}
		vm.Registers.Set(0, ErrGeneric)
		return nil
	}

	handle := vm.allocHandle(f)
	if handle == ErrGeneric {
		_ = f.Close()
	}
	vm.Registers.Set(0, handle)
	return nil
}

func (vm *VM) sysFclose() error {
	handle := vm.Registers.Get(0)
	f, err := vm.getFile(handle)
	if err != nil {
		return fatalf("fclose: %v", err)
	}
	if err := f.Close(); err != nil {
		return fatalf("fclose: %v", err)
	}
	vm.fdMu.Lock()
	vm.files[handle] = nil
	vm.fdMu.Unlock()
	return nil
}

func (vm *VM) sysRead() error {
	handle := vm.Registers.Get(0)
	addr := vm.Registers.Get(1)
	count := vm.Registers.Get(2)

	var r io.Reader
	if handle == HandleStdin {
		r = vm.stdinReader
	} else {
		f, err := vm.getFile(handle)
		if err != nil {
			return fatalf("read: %v", err)
		}
		r = f
	}

	buf := make([]byte, 4096)
	var total uint32
	for total < count {
		want := count - total
		if uint32(len(buf)) < want {
			want = uint32(len(buf))
		}
		n, readErr := r.Read(buf[:want])
		if n > 0 {
			if err := vm.Memory.StoreBytes(addr+total, buf[:n]); err != nil {
				return fatalf("read: %v", err)
			}
			total += uint32(n)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fatalf("read: %v", readErr)
		}
		if n == 0 {
			break
		}
	}

	vm.Registers.Set(0, total)
	return nil
}

func (vm *VM) sysFwrite() error {
	handle := vm.Registers.Get(0)
	addr := vm.Registers.Get(1)
	count := vm.Registers.Get(2)

	f, err := vm.getFile(handle)
	if err != nil {
		return fatalf("fwrite: %v", err)
	}
	data, err := vm.Memory.LoadBytes(addr, count)
	if err != nil {
		return fatalf("fwrite: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		return fatalf("fwrite: %v", err)
	}

	vm.Registers.Set(0, count)
	return nil
}

func (vm *VM) sysFseek() error {
	handle := vm.Registers.Get(0)
	whence := vm.Registers.Get(1)
	offset := int64(uint64(vm.Registers.Get(3))<<32 | uint64(vm.Registers.Get(2)))

	f, err := vm.getFile(handle)
	if err != nil {
		return fatalf("fseek: %v", err)
	}

	var goWhence int
	switch whence {
	case 0:
		goWhence = io.SeekStart
	case 1:
		goWhence = io.SeekCurrent
	case 2:
		goWhence = io.SeekEnd
	default:
		return fatalf("fseek: invalid whence %d", whence)
	}

	if _, err := f.Seek(offset, goWhence); err != nil {
		return fatalf("fseek: %v", err)
	}

	vm.Registers.Set(0, 0)
	return nil
}

func (vm *VM) sysFtell() error {
	handle := vm.Registers.Get(0)
	addr := vm.Registers.Get(1)

	f, err := vm.getFile(handle)
	if err != nil {
		return fatalf("ftell: %v", err)
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fatalf("ftell: %v", err)
	}

	if err := vm.Memory.StoreWord(addr, uint32(pos)); err != nil {
		return fatalf("ftell: %v", err)
	}
	if err := vm.Memory.StoreWord(addr+4, uint32(pos>>32)); err != nil {
		return fatalf("ftell: %v", err)
	}

	vm.Registers.Set(0, 0)
	return nil
}

func (vm *VM) sysFtrunc() error {
	handle := vm.Registers.Get(0)
	size := int64(uint64(vm.Registers.Get(2))<<32 | uint64(vm.Registers.Get(1)))

	f, err := vm.getFile(handle)
	if err != nil {
		return fatalf("ftrunc: %v", err)
	}
	if err := f.Truncate(size); err != nil {
		return fatalf("ftrunc: %v", err)
	}

	vm.Registers.Set(0, 0)
	return nil
}

func (vm *VM) sysUnlink() error {
	path, err := vm.Memory.LoadString(vm.Registers.Get(0))
	if err != nil {
		return fatalf("unlink: %v", err)
	}
	if err := os.Remove(path); err != nil {
		vm.Registers.Set(0, ErrGeneric)
		return nil
	}
	vm.Registers.Set(0, 0)
	return nil
}

func (vm *VM) sysChmod() error {
	path, err := vm.Memory.LoadString(vm.Registers.Get(0))
	if err != nil {
		return fatalf("chmod: %v", err)
	}
	mode := os.FileMode(vm.Registers.Get(1) & 0o777)
	if err := os.Chmod(path, mode); err != nil {
		vm.Registers.Set(0, ErrGeneric)
		return nil
	}
	vm.Registers.Set(0, 0)
	return nil
}
