package procfs

import (
	"os"
	"testing"

	"proctool/snapshot"
)

func TestParseMapLine_LibcExample(t *testing.T) {
	// spec scenario 1: exact map line for libc.so.6
	line := "e4ba32e70000-e4ba3300a000 r-xp 00000000 fc:00 298576                     /usr/lib/aarch64-linux-gnu/libc.so.6"

	region, err := parseMapLine(line)
	if err != nil {
		t.Fatalf("parseMapLine failed: %v", err)
	}

	if region.Base != 0xe4ba32e70000 {
		t.Errorf("Base = %x, want %x", region.Base, uint64(0xe4ba32e70000))
	}
	if region.Size != 1679360 {
		t.Errorf("Size = %d, want %d", region.Size, 1679360)
	}
	if !region.Readable {
		t.Error("expected readable")
	}
	if region.Writable {
		t.Error("expected not writable")
	}
	if !region.Executable {
		t.Error("expected executable")
	}
	if !region.Private {
		t.Error("expected private")
	}
	if region.Label != "/usr/lib/aarch64-linux-gnu/libc.so.6" {
		t.Errorf("Label = %q, want %q", region.Label, "/usr/lib/aarch64-linux-gnu/libc.so.6")
	}
}

func TestParseMapLine_EmptyLabel(t *testing.T) {
	line := "55a1b2c30000-55a1b2c31000 rw-p 00000000 00:00 0 "

	region, err := parseMapLine(line)
	if err != nil {
		t.Fatalf("parseMapLine failed: %v", err)
	}
	if region.Label != "" {
		t.Errorf("Label = %q, want empty string", region.Label)
	}
}

func TestParseMapLine_AnonymousNoTrailingSpace(t *testing.T) {
	line := "55a1b2c30000-55a1b2c31000 rw-p 00000000 00:00 0"

	region, err := parseMapLine(line)
	if err != nil {
		t.Fatalf("parseMapLine failed: %v", err)
	}
	if region.Label != "" {
		t.Errorf("Label = %q, want empty string", region.Label)
	}
}

func TestParseMapLine_VdsoLabel(t *testing.T) {
	line := "ffff9a3c0000-ffff9a3c1000 r-xp 00000000 00:00 0                          [vdso]"

	region, err := parseMapLine(line)
	if err != nil {
		t.Fatalf("parseMapLine failed: %v", err)
	}
	if region.Label != "[vdso]" {
		t.Errorf("Label = %q, want %q", region.Label, "[vdso]")
	}
}

func TestParseMapLine_PageAlignmentInvariant(t *testing.T) {
	lines := []string{
		"e4ba32e70000-e4ba3300a000 r-xp 00000000 fc:00 298576 /usr/lib/aarch64-linux-gnu/libc.so.6",
		"ffff9a3c0000-ffff9a3c1000 r-xp 00000000 00:00 0 [vdso]",
		"aaaaaaaa0000-aaaaaaab0000 rw-p 00000000 00:00 0 [heap]",
	}

	for _, line := range lines {
		region, err := parseMapLine(line)
		if err != nil {
			t.Fatalf("parseMapLine(%q) failed: %v", line, err)
		}
		if !region.PageAligned() {
			t.Errorf("parseMapLine(%q) produced non-page-aligned region: base=%x size=%d", line, region.Base, region.Size)
		}
	}
}

func TestParseMapLine_MalformedPermissions(t *testing.T) {
	_, err := parseMapLine("1000-2000 rwx 0 00:00 0 [heap]")
	if err == nil {
		t.Fatal("expected error for malformed permissions field")
	}
}

func TestParseMapLine_MalformedByteRange(t *testing.T) {
	_, err := parseMapLine("notahexrange rwxp 0 00:00 0 [heap]")
	if err == nil {
		t.Fatal("expected error for malformed byte range")
	}
}

func TestParseByteRange(t *testing.T) {
	base, size, err := parseByteRange("e4ba32e70000-e4ba3300a000")
	if err != nil {
		t.Fatalf("parseByteRange failed: %v", err)
	}
	if base != 0xe4ba32e70000 {
		t.Errorf("base = %x", base)
	}
	if size != 1679360 {
		t.Errorf("size = %d", size)
	}
}

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		perms                                   string
		readable, writable, executable, private bool
	}{
		{"r-xp", true, false, true, true},
		{"rw-p", true, true, false, true},
		{"rwxs", true, true, true, false},
		{"----", false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.perms, func(t *testing.T) {
			r, w, x, p, err := parsePermissions(tt.perms)
			if err != nil {
				t.Fatalf("parsePermissions(%q) failed: %v", tt.perms, err)
			}
			if r != tt.readable || w != tt.writable || x != tt.executable || p != tt.private {
				t.Errorf("parsePermissions(%q) = (%v,%v,%v,%v), want (%v,%v,%v,%v)",
					tt.perms, r, w, x, p, tt.readable, tt.writable, tt.executable, tt.private)
			}
		})
	}
}

func TestPopulateMemory_SkipsVvar(t *testing.T) {
	// Cannot attach a real /proc/<pid>/mem in a unit test without a live
	// process; this exercises the [vvar] short-circuit directly, which
	// requires no file I/O at all (a nil file is never touched).
	regions := []snapshot.MemoryRegion{
		{Base: 0x1000, Size: 4096, Readable: true, Label: "[vvar]"},
	}
	populateOneRegion(0, nil, &regions[0])
	if len(regions[0].Payload) != 0 {
		t.Errorf("expected [vvar] region payload to stay empty, got %d bytes", len(regions[0].Payload))
	}
}

func TestPopulateOneRegion_PartialReadLeavesPayloadEmpty(t *testing.T) {
	// A region whose declared Size runs past the end of the backing
	// file: ReadAt returns a short read with io.EOF, the same shape a
	// hole mid-region or a truncated /proc/<pid>/mem read produces.
	f, err := os.CreateTemp(t.TempDir(), "procfs-mem")
	if err != nil {
		t.Fatalf("CreateTemp failed: %v", err)
	}
	defer f.Close()

	if _, err := f.Write(make([]byte, 10)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	region := snapshot.MemoryRegion{Base: 0, Size: 4096, Readable: true, Label: "[heap]"}
	populateOneRegion(0, f, &region)

	if len(region.Payload) != 0 {
		t.Errorf("expected empty payload on partial read, got %d bytes", len(region.Payload))
	}
}

func TestReadCmdline_ErrorOnMissingProcess(t *testing.T) {
	_, err := ReadCmdline(-1)
	if err == nil {
		t.Fatal("expected error reading cmdline of nonexistent pid")
	}
}

func TestListPIDs_IncludesSelf(t *testing.T) {
	pids, err := ListPIDs()
	if err != nil {
		t.Fatalf("ListPIDs failed: %v", err)
	}
	if len(pids) == 0 {
		t.Fatal("expected at least one pid (this test process itself)")
	}
	self := os.Getpid()
	found := false
	for _, pid := range pids {
		if pid == self {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("expected ListPIDs to include the test process's own pid %d", self)
	}
}
