package ops

import "testing"

// These exercise only the error paths reachable without CAP_SYS_PTRACE
// or a live target: attaching to a pid that cannot exist. The
// attach-and-compose behavior against real targets is covered by the
// linux_integration-tagged tests alongside this file.

func TestPause_NoSuchProcess(t *testing.T) {
	if err := Pause(-1); err == nil {
		t.Fatal("expected error pausing nonexistent pid")
	}
}

func TestResume_NoSuchProcess(t *testing.T) {
	if err := Resume(-1); err == nil {
		t.Fatal("expected error resuming nonexistent pid")
	}
}

func TestRedirect_NoSuchProcess(t *testing.T) {
	if err := Redirect(-1, "/dev/pts/3"); err == nil {
		t.Fatal("expected error redirecting nonexistent pid")
	}
}

func TestRedirect_BadTerminalIdentifier(t *testing.T) {
	// Pid -1 fails at attach, before the identifier is normalized, so
	// this only confirms that the call reports an error.
	if err := Redirect(-1, "ttyS0"); err == nil {
		t.Fatal("expected error redirecting to unrecognized terminal identifier")
	}
}

func TestTakeover_NoSuchProcess(t *testing.T) {
	if err := Takeover(-1, "/usr/bin/true", false); err == nil {
		t.Fatal("expected error taking over nonexistent pid")
	}
}

func TestRewind_NoSuchProcess(t *testing.T) {
	if err := Rewind(-1); err == nil {
		t.Fatal("expected error rewinding nonexistent pid")
	}
}

func TestFreeze_NoSuchProcess(t *testing.T) {
	if _, err := Freeze(-1); err == nil {
		t.Fatal("expected error freezing nonexistent pid")
	}
}

func TestStubArgv_IsWellFormed(t *testing.T) {
	if len(stubArgv) == 0 {
		t.Fatal("stubArgv must name a program")
	}
	if stubArgv[0] == "" {
		t.Fatal("stubArgv[0] must not be empty")
	}
}
