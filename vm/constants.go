package vm

// Register indices. Twelve are general purpose; the top four have
// architectural roles fixed by the ABI.
const (
	RSP = 0xC // stack pointer
	RFP = 0xD // frame pointer
	RPP = 0xE // program pointer (base of loaded program)
	RIP = 0xF // instruction pointer
)

// NumRegisters is the size of the register file.
const NumRegisters = 16

// BaseAddr is the virtual address of the first byte of the VM image.
const BaseAddr uint32 = 0x10000

// Memory sizes the VM image may be built at.
const (
	MemorySize16MiB uint32 = 16 * 1024 * 1024
	MemorySize32MiB uint32 = 32 * 1024 * 1024
)

// DefaultMemorySize is the image size used when none is configured.
const DefaultMemorySize = MemorySize16MiB

// Opcodes, low nibble of the opcode byte. The high nibble must always be 0x7.
const (
	OpAdd  = 0x0
	OpSub  = 0x1
	OpMul  = 0x2
	OpDivu = 0x3
	OpAnd  = 0x4
	OpOr   = 0x5
	OpXor  = 0x6
	OpRor  = 0x7
	OpLdw  = 0x8
	OpStw  = 0x9
	OpLdb  = 0xA
	OpStb  = 0xB
	OpIms  = 0xC
	OpCmpu = 0xD
	OpJz   = 0xE
	OpSys  = 0xF
)

// OpcodeHighNibbleMask is the fixed high nibble every valid opcode byte
// carries.
const OpcodeHighNibbleMask = 0x70

// Mix byte ranges.
const (
	mixLiteralMax  = 0x7F
	mixRegisterMin = 0x80
	mixRegisterMax = 0x8F
)

// Syscall numbers.
const (
	SysHalt   = 0x00
	SysTime   = 0x01
	SysSpawn  = 0x02
	SysFopen  = 0x03
	SysFclose = 0x04
	SysRead   = 0x05
	SysFwrite = 0x06
	SysFseek  = 0x07
	SysFtell  = 0x08
	SysFtrunc = 0x09
	SysUnlink = 0x10
	SysChmod  = 0x11
)

// Error-code sentinels a syscall may return to the guest in R0.
const (
	ErrGeneric uint32 = 0xFFFFFFFF
	ErrPath    uint32 = 0xFFFFFFFE
	ErrIO      uint32 = 0xFFFFFFFD
	ErrUnsup   uint32 = 0xFFFFFFFC
)

// Standard stream handle indices, fixed for the lifetime of the VM.
const (
	HandleStdin  = 0
	HandleStdout = 1
	HandleStderr = 2
)

// NumHandles is the size of the file handle table.
const NumHandles = 16

// PITSize is the size in bytes of the process info table.
const PITSize = 40

// Process info table field offsets, in bytes from the table's base address.
const (
	PITVersion      = 0
	PITBreak        = 4
	PITHaltAddr     = 8
	PITStdinHandle  = 12
	PITStdoutHandle = 16
	PITStderrHandle = 20
	PITArgvAddr     = 24
	PITEnvpAddr     = 28
	PITCwdAddr      = 32
	PITCaps         = 36
)

// FaultExitCode is the host process exit code used when the VM hits an
// uncaught fatal error.
const FaultExitCode = 125
