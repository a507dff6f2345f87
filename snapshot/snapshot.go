// Package snapshot defines the on-disk and in-memory representation of a
// frozen process: its memory regions and register banks, and the
// atomic file format used to persist them between Freeze and Thaw.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"

	perrors "proctool/errors"
)

const pageSize = 4096

// MemoryRegion describes one contiguous segment of a target's address
// space, as read from its memory map.
type MemoryRegion struct {
	Base       uint64 `json:"base"`
	Size       uint64 `json:"size"`
	Readable   bool   `json:"readable"`
	Writable   bool   `json:"writable"`
	Executable bool   `json:"executable"`
	Private    bool   `json:"private"`
	Label      string `json:"label"`
	// Payload holds the region's bytes once populated by a freeze or
	// telefork transmission; empty when only the layout is known.
	Payload []byte `json:"payload,omitempty"`
}

// End returns the exclusive end address of the region.
func (r MemoryRegion) End() uint64 {
	return r.Base + r.Size
}

// PageAligned reports whether the region's base and size both satisfy
// the page-alignment invariant required of every parsed map line.
func (r MemoryRegion) PageAligned() bool {
	return r.Base%pageSize == 0 && r.Size > 0 && r.Size%pageSize == 0
}

// RegisterBank is the general-purpose register set the kernel exposes
// for AArch64 via NT_PRSTATUS: 31 general-purpose registers, stack
// pointer, program counter, and processor state. Callers must not
// interpret fields other than Regs[8] (syscall number), Regs[0:6]
// (syscall arguments/result), and Pc.
type RegisterBank struct {
	Regs   [31]uint64 `json:"regs"`
	Sp     uint64     `json:"sp"`
	Pc     uint64     `json:"pc"`
	Pstate uint64     `json:"pstate"`
}

// FPRegisterBank is the opaque floating-point register bank (NT_PRFPREG),
// carried as a raw byte string; proctool never interprets it.
type FPRegisterBank []byte

// ProcessSnapshot is a serializable record of a frozen process: its full
// memory map (with payloads populated) plus its register banks.
type ProcessSnapshot struct {
	Regions []MemoryRegion `json:"regions"`
	GPRegs  RegisterBank   `json:"gp_registers"`
	FPRegs  FPRegisterBank `json:"fp_registers,omitempty"`
}

// Save writes the snapshot to path as indented JSON, using a temp-file
// then atomic-rename sequence so a crash mid-write never leaves a
// truncated or corrupt state file behind.
func (s *ProcessSnapshot) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return perrors.WrapWithDetail(err, perrors.ErrExternal, "snapshot_save", "marshal failed")
	}

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return perrors.Wrap(err, perrors.ErrSnapshotIO.Kind, "snapshot_save")
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return perrors.Wrap(err, perrors.ErrSnapshotIO.Kind, "snapshot_save")
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return perrors.Wrap(err, perrors.ErrSnapshotIO.Kind, "snapshot_save")
	}
	if err := tmpFile.Close(); err != nil {
		return perrors.Wrap(err, perrors.ErrSnapshotIO.Kind, "snapshot_save")
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return perrors.Wrap(err, perrors.ErrSnapshotIO.Kind, "snapshot_save")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return perrors.Wrap(err, perrors.ErrSnapshotIO.Kind, "snapshot_save")
	}

	success = true
	return nil
}

// Load reads a ProcessSnapshot previously written by Save.
func Load(path string) (*ProcessSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrSnapshotIO.Kind, "snapshot_load")
	}
	var s ProcessSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, perrors.WrapWithDetail(err, perrors.ErrExternal, "snapshot_load", "unmarshal failed")
	}
	return &s, nil
}
