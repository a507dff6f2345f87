// Package ops composes the ptrace primitives into the controller's
// user-facing operations: pausing and resuming a target, redirecting
// its stdio, taking it over with a new program image, rewinding it
// back to its own start, and freezing/thawing its entire state.
package ops

import (
	"fmt"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	perrors "proctool/errors"
	"proctool/logging"
	"proctool/procfs"
	"proctool/ptrace"
	"proctool/snapshot"
	"proctool/term"
)

// Pause attaches to pid, leaving it stopped.
func Pause(pid int) error {
	c := ptrace.New(pid)
	if err := c.Attach(); err != nil {
		return err
	}
	c.SuppressDetach()
	return nil
}

// Resume detaches from pid without delivering a signal, leaving it
// running with nothing pending.
func Resume(pid int) error {
	c := ptrace.New(pid)
	return c.Detach()
}

// Redirect reattaches to pid, closes its stdout and stderr, and
// reopens both against the terminal at ttyPath.
//
// fd 0 is deliberately left untouched here: the source this operation
// is drawn from comments out the symmetric stdin redirection without
// explaining why, so this port preserves the asymmetry rather than
// silently completing it (spec §9 open question).
func Redirect(pid int, ttyPath string) error {
	c := ptrace.New(pid)
	if err := c.Attach(); err != nil {
		return err
	}
	defer c.Release()

	if err := c.CancelPendingRead(); err != nil {
		return err
	}

	saved, err := c.GetRegisters()
	if err != nil {
		return err
	}

	if _, err := c.ExecuteSyscall(unix.SYS_CLOSE, []uint64{1}); err != nil {
		return err
	}
	if _, err := c.ExecuteSyscall(unix.SYS_CLOSE, []uint64{2}); err != nil {
		return err
	}

	normalized, err := term.Normalize(ttyPath)
	if err != nil {
		return err
	}
	log := logging.WithOperation(logging.WithPID(logging.Default(), pid), "redirect")
	if err := term.Clear(normalized); err != nil {
		log.Warn("best-effort terminal clear failed", "tty", normalized, "error", err)
	}

	pathAddr, err := c.InjectBytes(append([]byte(normalized), 0))
	if err != nil {
		return err
	}

	// openat assigns the lowest free fd, so the first call lands on 1
	// (just closed) and the second on 2.
	if _, err := c.ExecuteSyscall(unix.SYS_OPENAT, []uint64{
		uint64(unix.AT_FDCWD), pathAddr, uint64(unix.O_RDWR), 0,
	}); err != nil {
		return err
	}
	if _, err := c.ExecuteSyscall(unix.SYS_OPENAT, []uint64{
		uint64(unix.AT_FDCWD), pathAddr, uint64(unix.O_RDWR), 0,
	}); err != nil {
		return err
	}

	return c.SetRegisters(saved)
}

// Takeover attaches to pid and executes binPath in its place, keeping
// its pid, controlling terminal, and file descriptors. If pause is
// true, the target is left attached and stopped immediately after
// execve is queued, for inspection before it actually runs; otherwise
// it is driven through the execve and detached to run freely.
func Takeover(pid int, binPath string, pause bool) error {
	c := ptrace.New(pid)
	if err := c.Attach(); err != nil {
		return err
	}
	defer c.Release()

	if err := c.EnsureNotInSyscall(); err != nil {
		return err
	}

	pathAddr, err := c.InjectBytes(append([]byte(binPath), 0))
	if err != nil {
		return err
	}
	// A single injected null pointer stands in for both an empty argv
	// and an empty envp.
	nullAddr, err := c.InjectU64s([]uint64{0})
	if err != nil {
		return err
	}

	pc, err := c.FindSVCInstruction()
	if err != nil {
		return err
	}
	if err := c.PrepareSyscall(unix.SYS_EXECVE, []uint64{pathAddr, nullAddr, nullAddr}, pc); err != nil {
		return err
	}

	if pause {
		c.SuppressDetach()
		return nil
	}

	if err := c.EnsureNotInSyscall(); err != nil {
		return err
	}
	return nil
}

// Rewind re-executes pid's own original command line from scratch:
// the process keeps its pid but starts over as if freshly launched.
func Rewind(pid int) error {
	c := ptrace.New(pid)
	if err := c.Attach(); err != nil {
		return err
	}
	defer c.Release()

	if err := c.EnsureNotInSyscall(); err != nil {
		return err
	}

	argv, err := procfs.ReadCmdline(pid)
	if err != nil {
		return err
	}
	if len(argv) == 0 {
		return perrors.WrapWithPid(nil, perrors.ErrMemoryAccess, "rewind_read_cmdline", pid)
	}

	if ttyPath, ttyErr := term.ControllingTerminal(pid); ttyErr == nil {
		if err := term.Clear(ttyPath); err != nil {
			log := logging.WithOperation(logging.WithPID(logging.Default(), pid), "rewind")
			log.Warn("best-effort terminal clear failed", "tty", ttyPath, "error", err)
		}
	}

	argAddrs := make([]uint64, 0, len(argv))
	for _, arg := range argv {
		addr, err := c.InjectBytes(append(append([]byte{}, arg...), 0))
		if err != nil {
			return err
		}
		argAddrs = append(argAddrs, addr)
	}
	argAddrs = append(argAddrs, 0)
	argvAddr, err := c.InjectU64s(argAddrs)
	if err != nil {
		return err
	}

	envAddr, err := c.InjectU64s([]uint64{0})
	if err != nil {
		return err
	}

	if _, err := c.ExecuteSyscall(unix.SYS_EXECVE, []uint64{argAddrs[0], argvAddr, envAddr}); err != nil {
		return err
	}

	return nil
}

// Freeze captures pid's complete state: registers and the contents of
// every mapped memory region. The target is left stopped but
// untraced.
func Freeze(pid int) (*snapshot.ProcessSnapshot, error) {
	c := ptrace.New(pid)
	if err := c.Attach(); err != nil {
		return nil, err
	}

	regs, err := c.GetRegisters()
	if err != nil {
		c.Release()
		return nil, err
	}

	if err := c.DetachAndStop(); err != nil {
		return nil, err
	}

	regions, err := procfs.ReadMemoryMaps(pid)
	if err != nil {
		return nil, err
	}
	if err := procfs.PopulateMemory(pid, regions); err != nil {
		return nil, err
	}

	return &snapshot.ProcessSnapshot{
		Regions: regions,
		GPRegs:  regs,
	}, nil
}

// stubArgv is the placeholder program spawned to host a thawed
// process. Its own code never runs: SysProcAttr.Ptrace stops it at
// the post-exec trap before a single instruction of it executes, and
// Thaw overwrites its entire memory image before ever letting it go.
var stubArgv = []string{"sleep", "infinity"}

// Thaw restores a previously frozen snapshot into a brand new process
// and returns its pid. The new process ends up stopped-and-detached at
// the snapshot's program counter with the snapshot's memory image; the
// caller resumes it with Resume.
//
// The original this is ported from spawns the restore target by
// forking and having the child ptrace itself before raising SIGSTOP.
// Go's runtime cannot safely call a bare fork() from a multithreaded
// process, so this instead execs a throwaway placeholder with
// SysProcAttr.Ptrace set, which the kernel stops at the equivalent
// point: immediately after the child's own execve, before it runs.
// Ptrace's tracer identity is bound to a single OS thread, so the work
// below runs on a goroutine that locks and never releases one.
func Thaw(snap *snapshot.ProcessSnapshot) (int, error) {
	type result struct {
		pid int
		err error
	}
	done := make(chan result, 1)
	go func() {
		runtime.LockOSThread()
		pid, err := thawLocked(snap)
		done <- result{pid, err}
	}()
	r := <-done
	return r.pid, r.err
}

func thawLocked(snap *snapshot.ProcessSnapshot) (int, error) {
	cmd := exec.Command(stubArgv[0], stubArgv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	if err := cmd.Start(); err != nil {
		return 0, perrors.Wrap(err, perrors.ErrSyscallInject, "thaw_spawn_stub")
	}
	pid := cmd.Process.Pid

	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return 0, perrors.WrapWithPid(err, perrors.ErrAttach, "thaw_wait_stub", pid)
	}

	c := ptrace.New(pid)

	// TODO: why is this necessary? The source this is ported from sets
	// the registers here, before map_svc_region, and again at the end;
	// the first call should in principle be redundant with the second.
	if err := c.SetRegisters(snap.GPRegs); err != nil {
		return 0, err
	}

	scratch, err := c.MapSVCRegion()
	if err != nil {
		return 0, err
	}

	log := logging.WithOperation(logging.WithPID(logging.Default(), pid), "thaw")
	for _, region := range snap.Regions {
		if err := c.MapAndFillRegion(scratch, region); err != nil {
			log.Warn("region restore failed", "base", fmt.Sprintf("0x%x", region.Base), "error", err)
		}
	}

	if err := c.SetRegisters(snap.GPRegs); err != nil {
		return 0, err
	}
	if len(snap.FPRegs) > 0 {
		if err := c.SetFPRegisters(snap.FPRegs); err != nil {
			return 0, err
		}
	}

	if err := c.DetachAndStop(); err != nil {
		return 0, err
	}
	return pid, nil
}
