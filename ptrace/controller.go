// Package ptrace implements the external process controller: the
// primitives that attach to a target process via the kernel debug
// interface, read and write its registers and memory, and inject
// synthetic system calls by hijacking its program counter.
//
// Every primitive here operates on AArch64 targets only; the syscall
// numbers and register layouts are not portable to other architectures
// (see spec's Open Questions on x86-64 support).
package ptrace

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	perrors "proctool/errors"
	"proctool/logging"
	"proctool/procfs"
	"proctool/snapshot"
	"proctool/term"
)

const (
	pageSize = 4096
	trapWord = 0xd4000001
)

var trapBytes = [4]byte{0x01, 0x00, 0x00, 0xd4}

// AArch64 syscall numbers injected into the target's register 8 before
// a trap instruction runs. These are never executed on the host.
const (
	sysMmap     = 222
	sysMunmap   = 215
	sysMprotect = 226
	sysOpenat   = 56
	sysExecve   = 221
	sysClose    = 57
)

// NT_PRSTATUS / NT_PRFPREG note types for PTRACE_GETREGSET/SETREGSET.
const (
	ntPRStatus = 1
	ntPRFPReg  = 2
)

// fpRegsSize is sizeof(struct user_fpsimd_state) on arm64: 32 128-bit
// V registers plus fpsr/fpcr/reserved.
const fpRegsSize = 32*16 + 16

// Controller drives ptrace-based manipulation of a single target
// process. It caches the target's memory map on first use (§5: the
// cache is instance-local and computed once) and guarantees detach
// exactly once on scoped release.
type Controller struct {
	pid int

	regionsOnce sync.Once
	regions     []snapshot.MemoryRegion
	regionsErr  error

	mu               sync.Mutex
	released         bool
	detachSuppressed bool
}

// New returns a controller for pid. It does not attach.
func New(pid int) *Controller {
	return &Controller{pid: pid}
}

// Pid returns the target process id.
func (c *Controller) Pid() int {
	return c.pid
}

// SuppressDetach marks the controller so Release leaves the target
// attached and stopped instead of detaching, for callers like Pause
// (and Takeover with pause set) that need to hand off a still-traced
// target.
func (c *Controller) SuppressDetach() {
	c.detachSuppressed = true
}

// Release detaches the target exactly once unless detach has been
// suppressed, logging rather than propagating a failure — this models
// the scoped-acquisition guarantee from spec §9 (RAII-equivalent
// cleanup on every exit path).
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released || c.detachSuppressed {
		return
	}
	c.released = true
	if err := c.Detach(); err != nil {
		logging.Warn("detach on scoped release failed", "pid", c.pid, "error", err)
	}
}

func ptraceRaw(request int, pid int, addr, data uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_PTRACE, uintptr(request), uintptr(pid), addr, data, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (c *Controller) wait() error {
	var ws unix.WaitStatus
	_, err := unix.Wait4(c.pid, &ws, 0, nil)
	return err
}

// Attach attaches to the target via PTRACE_ATTACH and waits for it to
// reach the stopped state.
func (c *Controller) Attach() error {
	if err := unix.PtraceAttach(c.pid); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrAttach, "attach", c.pid)
	}
	if err := c.wait(); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrAttach, "attach", c.pid)
	}
	return nil
}

// SeizeAndInterrupt attaches via PTRACE_SEIZE, which unlike
// PTRACE_ATTACH does not require the target to be freshly stopped by a
// signal, then PTRACE_INTERRUPT to bring it to a stop. The telefork
// client uses this instead of Attach so it disturbs the target's
// pending signal state as little as possible.
func (c *Controller) SeizeAndInterrupt() error {
	if err := ptraceRaw(unix.PTRACE_SEIZE, c.pid, 0, 0); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrAttach, "seize_and_interrupt", c.pid)
	}
	if err := ptraceRaw(unix.PTRACE_INTERRUPT, c.pid, 0, 0); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrAttach, "seize_and_interrupt", c.pid)
	}
	if err := c.wait(); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrAttach, "seize_and_interrupt", c.pid)
	}
	return nil
}

// Detach detaches from the target, leaving it running.
func (c *Controller) Detach() error {
	return c.detachGeneric(0)
}

// DetachAndStop detaches, delivering SIGSTOP at detach time so the
// target remains paused once the debugger lets go.
func (c *Controller) DetachAndStop() error {
	return c.detachGeneric(int(unix.SIGSTOP))
}

func (c *Controller) detachGeneric(signal int) error {
	if err := ptraceRaw(unix.PTRACE_DETACH, c.pid, 0, uintptr(signal)); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrAttach, "detach", c.pid)
	}
	return nil
}

func (c *Controller) regSet(request int, kind int, base unsafe.Pointer, size uintptr) error {
	iov := unix.Iovec{Base: (*byte)(base), Len: uint64(size)}
	return ptraceRaw(request, c.pid, uintptr(kind), uintptr(unsafe.Pointer(&iov)))
}

// GetRegisters reads the target's general-purpose register bank via
// PTRACE_GETREGSET (NT_PRSTATUS).
func (c *Controller) GetRegisters() (snapshot.RegisterBank, error) {
	var regs snapshot.RegisterBank
	if err := c.regSet(unix.PTRACE_GETREGSET, ntPRStatus, unsafe.Pointer(&regs), unsafe.Sizeof(regs)); err != nil {
		return snapshot.RegisterBank{}, perrors.WrapWithPid(err, perrors.ErrRegisterAccess, "get_registers", c.pid)
	}
	return regs, nil
}

// SetRegisters writes the target's general-purpose register bank via
// PTRACE_SETREGSET (NT_PRSTATUS).
func (c *Controller) SetRegisters(regs snapshot.RegisterBank) error {
	if err := c.regSet(unix.PTRACE_SETREGSET, ntPRStatus, unsafe.Pointer(&regs), unsafe.Sizeof(regs)); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrRegisterAccess, "set_registers", c.pid)
	}
	return nil
}

// GetFPRegisters reads the target's floating-point register bank
// (NT_PRFPREG) as an opaque byte string.
func (c *Controller) GetFPRegisters() (snapshot.FPRegisterBank, error) {
	buf := make([]byte, fpRegsSize)
	if err := c.regSet(unix.PTRACE_GETREGSET, ntPRFPReg, unsafe.Pointer(&buf[0]), uintptr(len(buf))); err != nil {
		return nil, perrors.WrapWithPid(err, perrors.ErrRegisterAccess, "get_fp_registers", c.pid)
	}
	return buf, nil
}

// SetFPRegisters writes the target's floating-point register bank.
func (c *Controller) SetFPRegisters(fp snapshot.FPRegisterBank) error {
	if len(fp) == 0 {
		return nil
	}
	if err := c.regSet(unix.PTRACE_SETREGSET, ntPRFPReg, unsafe.Pointer(&fp[0]), uintptr(len(fp))); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrRegisterAccess, "set_fp_registers", c.pid)
	}
	return nil
}

// StepAndWait single-steps the target one instruction and waits for it
// to stop.
func (c *Controller) StepAndWait() error {
	if err := unix.PtraceSingleStep(c.pid); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrSyscallInject, "step_and_wait", c.pid)
	}
	if err := c.wait(); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrSyscallInject, "step_and_wait", c.pid)
	}
	return nil
}

func (c *Controller) peekWord(addr uint64) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := unix.PtracePeekData(c.pid, uintptr(addr), buf); err != nil {
		return 0, perrors.WrapWithPid(err, perrors.ErrMemoryAccess, "peek_word", c.pid)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// CurrentSyscall reads the 4 bytes at the current program counter. If
// they form the trap instruction, it returns the syscall number
// (register 8) and the first argument (register 0); otherwise ok is
// false.
func (c *Controller) CurrentSyscall() (sysno uint64, arg0 uint64, ok bool, err error) {
	regs, err := c.GetRegisters()
	if err != nil {
		return 0, 0, false, err
	}
	word, err := c.peekWord(regs.Pc)
	if err != nil {
		return 0, 0, false, err
	}
	if word != trapWord {
		return 0, 0, false, nil
	}
	return regs.Regs[8], regs.Regs[0], true, nil
}

// CancelPendingRead writes an empty line to the target's stdin if it
// is currently blocked reading from fd 0, unblocking the read, then
// single-steps past the syscall's return.
func (c *Controller) CancelPendingRead() error {
	sysno, arg0, ok, err := c.CurrentSyscall()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if sysno == unix.SYS_READ && arg0 == 0 {
		if err := term.WriteStdin(c.pid, ""); err != nil {
			return err
		}
		return c.StepAndWait()
	}
	return nil
}

// EnsureNotInSyscall single-steps repeatedly until the program counter
// changes. This works for syscalls whose return is imminent (short
// sleeps); it spins for syscalls like a blocking read.
//
// TODO: this cannot distinguish "about to return" from "blocked
// indefinitely". The redesign is to switch to syscall-exit-stop with a
// bounded timeout once a single step fails to advance the PC, and
// report a timeout to the caller instead of spinning.
func (c *Controller) EnsureNotInSyscall() error {
	initial, err := c.GetRegisters()
	if err != nil {
		return err
	}
	for {
		if err := c.StepAndWait(); err != nil {
			return err
		}
		current, err := c.GetRegisters()
		if err != nil {
			return err
		}
		if current.Pc != initial.Pc {
			return nil
		}
	}
}

// PrepareSyscall loads register 8 with sysno, registers 0..len(args)
// with args, and the program counter with pc, without advancing
// execution.
func (c *Controller) PrepareSyscall(sysno uint64, args []uint64, pc uint64) error {
	regs, err := c.GetRegisters()
	if err != nil {
		return err
	}
	regs.Regs[8] = sysno
	for i, a := range args {
		if i >= 6 {
			break
		}
		regs.Regs[i] = a
	}
	regs.Pc = pc
	return c.SetRegisters(regs)
}

// ExecuteSyscallAtPC executes sysno with args at program counter pc
// (which must hold a trap instruction), and returns register 0 as the
// 64-bit result. Between PrepareSyscall and the matching
// EnsureNotInSyscall, the target executes exactly one instruction: the
// trap at pc. On return, the program counter has advanced to pc+4.
func (c *Controller) ExecuteSyscallAtPC(sysno uint64, args []uint64, pc uint64) (uint64, error) {
	if err := c.PrepareSyscall(sysno, args, pc); err != nil {
		return 0, err
	}
	if err := c.EnsureNotInSyscall(); err != nil {
		return 0, err
	}
	regs, err := c.GetRegisters()
	if err != nil {
		return 0, err
	}
	return regs.Regs[0], nil
}

// ExecuteSyscall executes sysno with args at a trap instruction located
// in [vdso].
func (c *Controller) ExecuteSyscall(sysno uint64, args []uint64) (uint64, error) {
	pc, err := c.FindSVCInstruction()
	if err != nil {
		return 0, err
	}
	return c.ExecuteSyscallAtPC(sysno, args, pc)
}

func (c *Controller) memoryMaps() ([]snapshot.MemoryRegion, error) {
	c.regionsOnce.Do(func() {
		c.regions, c.regionsErr = procfs.ReadMemoryMaps(c.pid)
	})
	return c.regions, c.regionsErr
}

// FindSVCInstruction searches [vdso] for a 4-byte trap instruction and
// returns the absolute address of the first match. A more complete
// implementation would scan every executable segment; [vdso] is
// guaranteed to contain one.
func (c *Controller) FindSVCInstruction() (uint64, error) {
	regions, err := c.memoryMaps()
	if err != nil {
		return 0, err
	}
	for _, r := range regions {
		if r.Label == "[vdso]" {
			return c.findSVCInRegion(r)
		}
	}
	return 0, perrors.WrapWithPid(nil, perrors.ErrMemoryAccess, "find_svc_instruction", c.pid)
}

func (c *Controller) findSVCInRegion(region snapshot.MemoryRegion) (uint64, error) {
	buf := make([]byte, region.Size)
	n, err := c.readMemory(region.Base, buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, perrors.ErrNoSVCInstruction
	}
	idx := bytes.Index(buf[:n], trapBytes[:])
	if idx < 0 {
		return 0, perrors.ErrNoSVCInstruction
	}
	return region.Base + uint64(idx), nil
}

func (c *Controller) readMemory(addr uint64, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(buf)}}
	n, err := unix.ProcessVMReadv(c.pid, local, remote, 0)
	if err != nil {
		return 0, perrors.WrapWithPid(err, perrors.ErrMemoryAccess, "read_memory", c.pid)
	}
	return n, nil
}

func (c *Controller) writeMemory(addr uint64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	local := []unix.Iovec{{Base: &data[0], Len: uint64(len(data))}}
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: len(data)}}
	n, err := unix.ProcessVMWritev(c.pid, local, remote, 0)
	if err != nil {
		return 0, perrors.WrapWithPid(err, perrors.ErrMemoryAccess, "write_memory", c.pid)
	}
	if n == 0 {
		return 0, perrors.WrapWithPid(nil, perrors.ErrMemoryAccess, "write_memory", c.pid)
	}
	return n, nil
}

// InjectBytes executes mmap in the target to allocate a readable+
// writable private anonymous region sized to hold data, copies data
// into it via the cross-process write primitive, and returns its base
// address.
func (c *Controller) InjectBytes(data []byte) (uint64, error) {
	addr, err := c.ExecuteSyscall(sysMmap, []uint64{
		0,
		uint64(len(data)),
		uint64(unix.PROT_READ | unix.PROT_WRITE),
		uint64(unix.MAP_ANON | unix.MAP_PRIVATE),
		^uint64(0),
		0,
	})
	if err != nil {
		return 0, err
	}
	if _, err := c.writeMemory(addr, data); err != nil {
		return 0, err
	}
	return addr, nil
}

// InjectU64s concatenates the little-endian encodings of xs and
// injects them as a single byte blob.
func (c *Controller) InjectU64s(xs []uint64) (uint64, error) {
	buf := make([]byte, 8*len(xs))
	for i, x := range xs {
		binary.LittleEndian.PutUint64(buf[i*8:], x)
	}
	return c.InjectBytes(buf)
}

// ReadBytes cross-process reads count bytes at addr.
func (c *Controller) ReadBytes(addr uint64, count int) ([]byte, error) {
	buf := make([]byte, count)
	n, err := c.readMemory(addr, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// WriteBytes cross-process writes data at addr.
func (c *Controller) WriteBytes(addr uint64, data []byte) error {
	_, err := c.writeMemory(addr, data)
	return err
}

// ReadString cross-process reads count bytes at addr and interprets
// them as a UTF-8 string.
func (c *Controller) ReadString(addr uint64, count int) (string, error) {
	buf := make([]byte, count)
	n, err := c.readMemory(addr, buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// MapRegion mmaps a private anonymous read+write+execute region of
// size bytes in the target and returns its base address.
func (c *Controller) MapRegion(size uint64) (uint64, error) {
	return c.ExecuteSyscall(sysMmap, []uint64{
		0,
		size,
		uint64(unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC),
		uint64(unix.MAP_ANON | unix.MAP_PRIVATE),
		^uint64(0),
		0,
	})
}

// MapSVCRegion maps a 4096-byte scratch pad one page above the
// target's highest existing mapping, filled with repeated copies of
// the trap instruction. This becomes the scratch pad used by Thaw and
// Rewind: any program counter in this region causes the target to
// issue a controllable syscall.
func (c *Controller) MapSVCRegion() (uint64, error) {
	regions, err := c.memoryMaps()
	if err != nil {
		return 0, err
	}
	var highest uint64
	for _, r := range regions {
		if r.End() > highest {
			highest = r.End()
		}
	}
	addr := highest + pageSize

	got, err := c.ExecuteSyscall(sysMmap, []uint64{
		addr,
		pageSize,
		uint64(unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC),
		uint64(unix.MAP_ANON | unix.MAP_PRIVATE | unix.MAP_FIXED),
		^uint64(0),
		0,
	})
	if err != nil {
		return 0, err
	}

	fill := make([]byte, pageSize)
	for i := 0; i < len(fill); i += 4 {
		copy(fill[i:i+4], trapBytes[:])
	}
	if _, err := c.writeMemory(got, fill); err != nil {
		return 0, err
	}
	return got, nil
}

// UnmapExistingRegions unmaps the [vvar] region and the page
// immediately after [vdso], using syscalls issued at the scratch pad.
// These two mappings are special and recreated by kernel cooperation
// after thaw, so they are not restored from a snapshot.
func (c *Controller) UnmapExistingRegions(scratch uint64) error {
	regions, err := c.memoryMaps()
	if err != nil {
		return err
	}
	for _, r := range regions {
		switch r.Label {
		case "[vvar]":
			if _, err := c.ExecuteSyscallAtPC(sysMunmap, []uint64{r.Base, r.Size}, scratch); err != nil {
				return perrors.WrapWithPid(err, perrors.ErrSyscallInject, "unmap_existing_regions", c.pid)
			}
		case "[vdso]":
			if _, err := c.ExecuteSyscallAtPC(sysMunmap, []uint64{r.End(), pageSize}, scratch); err != nil {
				return perrors.WrapWithPid(err, perrors.ErrSyscallInject, "unmap_existing_regions", c.pid)
			}
		}
	}
	return nil
}

// MapAndFillRegion unmaps any existing mapping at region's address
// range, mmaps a new private anonymous region there with region's
// recorded protection flags plus write (needed for the fill step),
// copies region's payload in via the cross-process write primitive,
// and if the original region was not writable, mprotects back down to
// its original protection. All syscalls run at program counter =
// scratch. Failure at any sub-step is reported; the caller decides
// whether to continue (Thaw and the telefork server log and skip
// per-region failures).
func (c *Controller) MapAndFillRegion(scratch uint64, region snapshot.MemoryRegion) error {
	if _, err := c.ExecuteSyscallAtPC(sysMunmap, []uint64{region.Base, region.Size}, scratch); err != nil {
		logging.Warn("munmap before remap failed", "pid", c.pid, "base", fmt.Sprintf("0x%x", region.Base), "error", err)
	}

	prot := mmapProt(region.Readable, true, region.Executable)
	if _, err := c.ExecuteSyscallAtPC(sysMmap, []uint64{
		region.Base,
		region.Size,
		prot,
		uint64(unix.MAP_ANON | unix.MAP_PRIVATE | unix.MAP_FIXED),
		^uint64(0),
		0,
	}, scratch); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrSyscallInject, "map_and_fill_region", c.pid)
	}

	if len(region.Payload) > 0 {
		if _, err := c.writeMemory(region.Base, region.Payload); err != nil {
			return err
		}
	}

	if !region.Writable {
		finalProt := mmapProt(region.Readable, false, region.Executable)
		if _, err := c.ExecuteSyscallAtPC(sysMprotect, []uint64{region.Base, region.Size, finalProt}, scratch); err != nil {
			return perrors.WrapWithPid(err, perrors.ErrSyscallInject, "map_and_fill_region", c.pid)
		}
	}
	return nil
}

func mmapProt(readable, writable, executable bool) uint64 {
	var prot uint64
	if readable {
		prot |= uint64(unix.PROT_READ)
	}
	if writable {
		prot |= uint64(unix.PROT_WRITE)
	}
	if executable {
		prot |= uint64(unix.PROT_EXEC)
	}
	return prot
}
