package telefork

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	perrors "proctool/errors"
	"proctool/logging"
	"proctool/procfs"
	"proctool/ptrace"
)

// exemptRegionSize is the unmap pass's single hard-coded exception: a
// region of exactly this size is left mapped. Left unexplained, as in
// the source this is ported from (spec §9 open question).
const exemptRegionSize = 2 << 20 // 2 MiB

// maxRequestBytes bounds a single /telefork request body: a whole
// address space's worth of memory payloads, plus register state. A var,
// not a const, so tests can shrink it rather than stream gigabytes.
var maxRequestBytes int64 = 8 << 30 // 8 GiB

// stubArgv is the placeholder program the server execs to host a
// restored process. Its own code never runs: SysProcAttr.Ptrace stops
// it right after its own exec, before any instruction of it executes.
var stubArgv = []string{"sleep", "infinity"}

// Server backs the /telefork HTTP endpoint: each request spawns a new
// process, tears down its default memory layout, and rebuilds it from
// the request's register and memory payload.
type Server struct{}

// NewServer returns a ready-to-use telefork server.
func NewServer() *Server {
	return &Server{}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := r.Header.Get(requestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.Warn("telefork: malformed request body", "request_id", requestID, "error", err)
		writeResponse(w, false)
		return
	}

	pid, err := restore(req)
	if err != nil {
		logging.Warn("telefork: restore failed", "request_id", requestID, "error", err)
		writeResponse(w, false)
		return
	}

	logging.WithTarget(logging.Default(), pid).Info("telefork: restore complete", "request_id", requestID)
	writeResponse(w, true)
}

func writeResponse(w http.ResponseWriter, success bool) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Response{Success: success}); err != nil {
		logging.Warn("telefork: failed to encode response", "error", err)
	}
}

// restore spawns the stub target and drives it through the teardown/
// rebuild sequence. It runs on a goroutine that locks and never
// releases an OS thread, since ptrace's tracer identity is bound to
// whichever thread issues the attach.
func restore(req Request) (int, error) {
	type result struct {
		pid int
		err error
	}
	done := make(chan result, 1)
	go func() {
		runtime.LockOSThread()
		pid, err := restoreLocked(req)
		done <- result{pid, err}
	}()
	r := <-done
	return r.pid, r.err
}

func restoreLocked(req Request) (int, error) {
	cmd := exec.Command(stubArgv[0], stubArgv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}
	if err := cmd.Start(); err != nil {
		return 0, perrors.Wrap(err, perrors.ErrSyscallInject, "telefork_spawn_stub")
	}
	pid := cmd.Process.Pid

	var ws unix.WaitStatus
	if _, err := unix.Wait4(pid, &ws, 0, nil); err != nil {
		return 0, perrors.WrapWithPid(err, perrors.ErrAttach, "telefork_wait_stub", pid)
	}

	c := ptrace.New(pid)

	keepPC, err := currentPC(c)
	if err != nil {
		return 0, err
	}

	if err := unmapExceptCurrent(c, keepPC); err != nil {
		return 0, err
	}

	scratch, err := c.MapSVCRegion()
	if err != nil {
		return 0, err
	}

	if err := c.SetRegisters(req.GPRegisterData); err != nil {
		return 0, err
	}
	if len(req.FPRegisterData) > 0 {
		if err := c.SetFPRegisters(req.FPRegisterData); err != nil {
			return 0, err
		}
	}

	for _, region := range req.MemoryMaps {
		if err := c.MapAndFillRegion(scratch, region); err != nil {
			logging.Warn("telefork: region restore failed", "pid", pid,
				"base", fmt.Sprintf("0x%x", region.Base), "error", err)
		}
	}

	if err := c.DetachAndStop(); err != nil {
		return 0, err
	}
	return pid, nil
}

func currentPC(c *ptrace.Controller) (uint64, error) {
	regs, err := c.GetRegisters()
	if err != nil {
		return 0, err
	}
	return regs.Pc, nil
}

// unmapExceptCurrent unmaps every memory region of c's target except
// the one containing keepPC and any region of exactly
// exemptRegionSize bytes, using the code-patching syscall technique
// rather than a scratch pad: at this point the stub has not yet had a
// scratch pad mapped, and the only syscall site known to be both
// present and writable is wherever the stub's own program counter
// currently sits.
func unmapExceptCurrent(c *ptrace.Controller, keepPC uint64) error {
	regions, err := procfs.ReadMemoryMaps(c.Pid())
	if err != nil {
		return err
	}

	for _, r := range regions {
		if keepPC >= r.Base && keepPC < r.End() {
			continue
		}
		if r.Size == exemptRegionSize {
			continue
		}
		if _, err := makeSyscall(c, unix.SYS_MUNMAP, []uint64{r.Base, r.Size}); err != nil {
			logging.Warn("telefork: unmap of stub region failed", "pid", c.Pid(),
				"base", fmt.Sprintf("0x%x", r.Base), "error", err)
		}
	}
	return nil
}

// trapBytes is the AArch64 trap instruction (svc #0), little-endian.
var trapBytes = [4]byte{0x01, 0x00, 0x00, 0xd4}

// makeSyscall is the server-side syscall-injection variant: unlike
// ptrace's scratch-pad approach, it overwrites the 4 bytes at the
// target's current program counter with the trap instruction,
// single-steps once, and restores both the original 4 bytes and the
// original register bank. This preserves the caller's instruction
// stream but requires the page at the program counter to be present
// and writable via the debug write primitive.
func makeSyscall(c *ptrace.Controller, sysno uint64, args []uint64) (uint64, error) {
	original, err := c.GetRegisters()
	if err != nil {
		return 0, err
	}
	pc := original.Pc

	savedBytes, err := c.ReadBytes(pc, len(trapBytes))
	if err != nil {
		return 0, err
	}
	if err := c.WriteBytes(pc, trapBytes[:]); err != nil {
		return 0, err
	}

	working := original
	working.Regs[8] = sysno
	for i, a := range args {
		if i >= 6 {
			break
		}
		working.Regs[i] = a
	}
	if err := c.SetRegisters(working); err != nil {
		return 0, err
	}

	if err := c.StepAndWait(); err != nil {
		return 0, err
	}
	after, err := c.GetRegisters()
	if err != nil {
		return 0, err
	}
	result := after.Regs[0]

	if err := c.WriteBytes(pc, savedBytes); err != nil {
		return 0, err
	}
	if err := c.SetRegisters(original); err != nil {
		return 0, err
	}

	return result, nil
}
