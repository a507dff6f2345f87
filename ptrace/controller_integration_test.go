//go:build linux_integration

package ptrace

import (
	"os/exec"
	"testing"
	"time"
)

// These tests exercise the real ptrace interface against a live child
// process and therefore need CAP_SYS_PTRACE and a Linux kernel on
// AArch64. Run them explicitly with:
//
//	go test -tags linux_integration ./...
func TestAttachDetach_LiveProcess(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start sleep: %v", err)
	}
	defer cmd.Process.Kill()

	c := New(cmd.Process.Pid)
	if err := c.Attach(); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer c.Release()

	if _, err := c.GetRegisters(); err != nil {
		t.Fatalf("GetRegisters failed: %v", err)
	}

	if err := c.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
}

func TestSeizeAndInterrupt_LiveProcess(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start sleep: %v", err)
	}
	defer cmd.Process.Kill()

	c := New(cmd.Process.Pid)
	if err := c.SeizeAndInterrupt(); err != nil {
		t.Fatalf("SeizeAndInterrupt failed: %v", err)
	}
	defer c.Release()

	if _, err := c.GetRegisters(); err != nil {
		t.Fatalf("GetRegisters after seize failed: %v", err)
	}
}

func TestExecuteSyscall_GetpidInvariant(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start sleep: %v", err)
	}
	defer cmd.Process.Kill()

	c := New(cmd.Process.Pid)
	if err := c.Attach(); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer c.Release()

	pc, err := c.FindSVCInstruction()
	if err != nil {
		t.Fatalf("FindSVCInstruction failed: %v", err)
	}

	// getpid = 172 on arm64; invariant 3: PC advances exactly 4 bytes
	// past the trap instruction used.
	const sysGetpid = 172
	if _, err := c.ExecuteSyscallAtPC(sysGetpid, nil, pc); err != nil {
		t.Fatalf("ExecuteSyscallAtPC failed: %v", err)
	}

	after, err := c.GetRegisters()
	if err != nil {
		t.Fatalf("GetRegisters failed: %v", err)
	}
	if after.Pc != pc+4 {
		t.Errorf("Pc after syscall = %#x, want %#x", after.Pc, pc+4)
	}
}

func TestMapSVCRegion_FillInvariant(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start sleep: %v", err)
	}
	defer cmd.Process.Kill()

	c := New(cmd.Process.Pid)
	if err := c.Attach(); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer c.Release()

	addr, err := c.MapSVCRegion()
	if err != nil {
		t.Fatalf("MapSVCRegion failed: %v", err)
	}

	for k := 0; k < 1024; k++ {
		word, err := c.peekWord(addr + uint64(k*4))
		if err != nil {
			t.Fatalf("peekWord(%d) failed: %v", k, err)
		}
		if word != trapWord {
			t.Fatalf("slot %d at scratch pad is %#x, want trap instruction %#x", k, word, uint32(trapWord))
		}
	}
}

func TestScopedRelease_DetachesExactlyOnce(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start sleep: %v", err)
	}
	defer cmd.Process.Kill()

	c := New(cmd.Process.Pid)
	if err := c.Attach(); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	c.Release()
	c.Release()
	c.Release()

	if !c.released {
		t.Error("expected released to be true after Release")
	}

	time.Sleep(10 * time.Millisecond)
}
