package ut88

import "errors"

// Error kinds reported by the emulator core. Callers match them with errors.Is, the
// wrapped message carries the details (opcode, address, direction...).
var (
	// ErrInvalidInstruction is returned when an undefined opcode is fetched.
	ErrInvalidInstruction = errors.New("invalid instruction")
	// ErrAddressing is returned for unmapped accesses in strict mode and for operations
	// a device does not support.
	ErrAddressing = errors.New("addressing error")
	// ErrMalformedInterrupt is returned when the injected instruction queue runs out in
	// the middle of an instruction.
	ErrMalformedInterrupt = errors.New("malformed interrupt")
	// ErrPrecondition is returned for out-of-range values and misconfigured peripherals.
	ErrPrecondition = errors.New("precondition violation")
)
