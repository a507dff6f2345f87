// Package errors provides predefined sentinel errors for common failure cases.
package errors

// Attach/detach errors.
var (
	// ErrTargetNotFound indicates the target pid does not exist.
	ErrTargetNotFound = &ControllerError{
		Kind:   ErrAttach,
		Detail: "target process not found",
	}

	// ErrAlreadyTraced indicates the target is already being traced by
	// another tracer.
	ErrAlreadyTraced = &ControllerError{
		Kind:   ErrAttach,
		Detail: "target is already being traced",
	}

	// ErrAttachPermission indicates PTRACE_ATTACH/SEIZE was denied.
	ErrAttachPermission = &ControllerError{
		Kind:   ErrAttach,
		Detail: "permission denied attaching to target",
	}

	// ErrNotAttached indicates an operation was attempted on a controller
	// that never successfully attached.
	ErrNotAttached = &ControllerError{
		Kind:   ErrAttach,
		Detail: "controller is not attached",
	}
)

// Register access errors.
var (
	// ErrGetRegisters indicates PTRACE_GETREGSET failed.
	ErrGetRegisters = &ControllerError{
		Kind:   ErrRegisterAccess,
		Detail: "failed to read registers",
	}

	// ErrSetRegisters indicates PTRACE_SETREGSET failed.
	ErrSetRegisters = &ControllerError{
		Kind:   ErrRegisterAccess,
		Detail: "failed to write registers",
	}
)

// Memory access errors.
var (
	// ErrReadMemory indicates process_vm_readv or /proc/<pid>/mem read failed.
	ErrReadMemory = &ControllerError{
		Kind:   ErrMemoryAccess,
		Detail: "failed to read target memory",
	}

	// ErrWriteMemory indicates process_vm_writev failed.
	ErrWriteMemory = &ControllerError{
		Kind:   ErrMemoryAccess,
		Detail: "failed to write target memory",
	}

	// ErrNoSVCInstruction indicates no trap instruction could be located
	// in the target's executable memory.
	ErrNoSVCInstruction = &ControllerError{
		Kind:   ErrMemoryAccess,
		Detail: "could not find svc instruction in target",
	}
)

// Syscall injection errors.
var (
	// ErrSyscallFailed indicates an injected syscall returned a negative
	// error code.
	ErrSyscallFailed = &ControllerError{
		Kind:   ErrSyscallInject,
		Detail: "injected syscall returned an error",
	}

	// ErrSyscallNoProgress indicates the target's program counter never
	// advanced past the trap instruction.
	ErrSyscallNoProgress = &ControllerError{
		Kind:   ErrSyscallInject,
		Detail: "target made no progress after syscall injection",
	}
)

// Map/status parse errors.
var (
	// ErrMalformedMapLine indicates a /proc/<pid>/maps line did not split
	// into the expected fields.
	ErrMalformedMapLine = &ControllerError{
		Kind:   ErrMapParse,
		Detail: "malformed memory map line",
	}

	// ErrMalformedStatusLine indicates a /proc/<pid>/status or stat line
	// could not be parsed.
	ErrMalformedStatusLine = &ControllerError{
		Kind:   ErrMapParse,
		Detail: "malformed process status line",
	}
)

// Protocol errors.
var (
	// ErrUnknownCommand indicates a command record's tag was not recognized.
	ErrUnknownCommand = &ControllerError{
		Kind:   ErrProtocol,
		Detail: "unknown command",
	}

	// ErrNotImplemented indicates a partially-specified command with no
	// defined semantics (see spec.md §9 Open Questions).
	ErrNotImplemented = &ControllerError{
		Kind:   ErrProtocol,
		Detail: "command not implemented",
	}

	// ErrMalformedEnvelope indicates a wire envelope failed to decode.
	ErrMalformedEnvelope = &ControllerError{
		Kind:   ErrProtocol,
		Detail: "malformed command envelope",
	}
)

// External (transport/serialization) errors.
var (
	// ErrTeleforkTransport indicates the telefork HTTP round-trip failed.
	ErrTeleforkTransport = &ControllerError{
		Kind:   ErrExternal,
		Detail: "telefork transport failed",
	}

	// ErrSnapshotIO indicates a snapshot file could not be read or written.
	ErrSnapshotIO = &ControllerError{
		Kind:   ErrExternal,
		Detail: "snapshot file I/O failed",
	}
)
