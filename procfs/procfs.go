// Package procfs reads a target process's memory map and command line
// out of the Linux /proc filesystem. It is a pure function from text
// records to structured data: no ptrace, no syscalls beyond file I/O.
package procfs

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	perrors "proctool/errors"
	"proctool/logging"
	"proctool/snapshot"
)

// vvarLabel is the kernel's sentinel label for the vvar mapping, which
// is always present in readable maps but cannot be read through
// /proc/<pid>/mem.
const vvarLabel = "[vvar]"

// ReadMemoryMaps reads and parses /proc/<pid>/maps, returning one
// MemoryRegion per line with payloads left empty.
func ReadMemoryMaps(pid int) ([]snapshot.MemoryRegion, error) {
	path := fmt.Sprintf("/proc/%d/maps", pid)
	f, err := os.Open(path)
	if err != nil {
		return nil, perrors.WrapWithPid(err, perrors.ErrMapParse, "read_memory_maps", pid)
	}
	defer f.Close()

	var regions []snapshot.MemoryRegion
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		region, err := parseMapLine(scanner.Text())
		if err != nil {
			return nil, perrors.WrapWithPid(err, perrors.ErrMapParse, "read_memory_maps", pid)
		}
		regions = append(regions, region)
	}
	if err := scanner.Err(); err != nil {
		return nil, perrors.WrapWithPid(err, perrors.ErrMapParse, "read_memory_maps", pid)
	}
	return regions, nil
}

// parseMapLine parses one line of /proc/<pid>/maps into a MemoryRegion.
//
// Format: "<start>-<end> <perms> <offset> <dev> <inode>               <path>"
// Split on whitespace into exactly six fields; the sixth (the label)
// may itself contain whitespace and may be empty.
func parseMapLine(line string) (snapshot.MemoryRegion, error) {
	// maps lines are whitespace-separated but padded with runs of
	// spaces before the label; split on runs of whitespace rather than
	// a single space and rejoin whatever remains into the label field.
	fields := splitMapFields(line)
	if len(fields) < 5 {
		return snapshot.MemoryRegion{}, perrors.ErrMalformedMapLine
	}

	base, size, err := parseByteRange(fields[0])
	if err != nil {
		return snapshot.MemoryRegion{}, err
	}

	readable, writable, executable, private, err := parsePermissions(fields[1])
	if err != nil {
		return snapshot.MemoryRegion{}, err
	}

	var label string
	if len(fields) >= 6 {
		label = strings.TrimSpace(fields[5])
	}

	return snapshot.MemoryRegion{
		Base:       base,
		Size:       size,
		Readable:   readable,
		Writable:   writable,
		Executable: executable,
		Private:    private,
		Label:      label,
	}, nil
}

// splitMapFields splits a /proc/<pid>/maps line into at most six
// fields, collapsing runs of whitespace the way the kernel pads the
// inode/path separator. A label that itself contains whitespace is kept
// as one field, but each run of whitespace inside it becomes a single
// space.
func splitMapFields(line string) []string {
	fields := strings.Fields(line)
	if len(fields) <= 5 {
		return fields
	}
	// Fields() already discarded whitespace; rejoin anything past the
	// fifth field with a single space, so the label's own spacing is
	// not reproduced exactly. The label is trimmed again by the caller.
	head := fields[:5]
	tail := strings.Join(fields[5:], " ")
	return append(head, tail)
}

// parseByteRange parses "start-end" hex addresses into (base, size).
func parseByteRange(byteRange string) (uint64, uint64, error) {
	parts := strings.SplitN(byteRange, "-", 2)
	if len(parts) != 2 {
		return 0, 0, perrors.ErrMalformedMapLine
	}
	start, err := strconv.ParseUint(parts[0], 16, 64)
	if err != nil {
		return 0, 0, perrors.WrapWithDetail(err, perrors.ErrMapParse, "parse_byte_range", "could not parse range start")
	}
	end, err := strconv.ParseUint(parts[1], 16, 64)
	if err != nil {
		return 0, 0, perrors.WrapWithDetail(err, perrors.ErrMapParse, "parse_byte_range", "could not parse range end")
	}
	if end < start {
		return 0, 0, perrors.WrapWithDetail(nil, perrors.ErrMapParse, "parse_byte_range", "range end precedes start")
	}
	return start, end - start, nil
}

// parsePermissions parses the four-character rwxp/rwxs permission field.
func parsePermissions(permissions string) (readable, writable, executable, private bool, err error) {
	if len(permissions) != 4 {
		return false, false, false, false, perrors.WrapWithDetail(nil, perrors.ErrMapParse, "parse_permissions",
			fmt.Sprintf("expected permissions field to be exactly 4 chars long, got %d", len(permissions)))
	}
	readable = permissions[0] == 'r'
	writable = permissions[1] == 'w'
	executable = permissions[2] == 'x'
	private = permissions[3] == 'p'
	return readable, writable, executable, private, nil
}

// PopulateMemory fills in the Payload field of every readable region by
// reading it out of /proc/<pid>/mem. Regions that are not readable, or
// whose label is the [vvar] sentinel, are left with an empty payload.
// A region that fails to read (transient EACCES and similar) is logged
// and skipped rather than aborting the whole snapshot.
func PopulateMemory(pid int, regions []snapshot.MemoryRegion) error {
	path := fmt.Sprintf("/proc/%d/mem", pid)
	f, err := os.Open(path)
	if err != nil {
		return perrors.WrapWithPid(err, perrors.ErrMemoryAccess, "populate_memory", pid)
	}
	defer f.Close()

	for i := range regions {
		populateOneRegion(pid, f, &regions[i])
	}
	return nil
}

// populateOneRegion reads one region's payload out of mem. A short read
// (including a partial read on EOF or a hole mid-region) leaves the
// region's payload empty rather than truncated: every region snapshot.Save
// writes with Readable set and a label other than [vvar] must have a
// payload exactly Size bytes long.
func populateOneRegion(pid int, mem *os.File, r *snapshot.MemoryRegion) {
	if !r.Readable || r.Label == vvarLabel {
		return
	}

	buf := make([]byte, r.Size)
	n, err := mem.ReadAt(buf, int64(r.Base))
	if n != len(buf) {
		logging.Warn("skipping unreadable region",
			"pid", pid, "base", fmt.Sprintf("0x%x", r.Base), "size", r.Size, "label", r.Label, "error", err)
		return
	}
	r.Payload = buf[:n]
}

// ListPIDs returns the process ids of every process currently visible
// under /proc, in the order the kernel's directory listing returns
// them (unspecified).
func ListPIDs() ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrMapParse, "list_pids")
	}

	var pids []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// ReadCmdline reads /proc/<pid>/cmdline and splits it into its
// null-terminated argument byte strings, dropping the final empty
// element produced by the trailing NUL.
func ReadCmdline(pid int) ([][]byte, error) {
	path := fmt.Sprintf("/proc/%d/cmdline", pid)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.WrapWithPid(err, perrors.ErrMapParse, "read_cmdline", pid)
	}
	data = bytes.TrimSuffix(data, []byte{0})
	if len(data) == 0 {
		return nil, nil
	}
	return bytes.Split(data, []byte{0}), nil
}
