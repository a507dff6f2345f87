// Package procinfo reads per-process status and stat records out of
// the Linux /proc filesystem and aggregates them into process trees,
// groups, and sessions, the way `ps`/`pstree` do.
package procinfo

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	perrors "proctool/errors"
	"proctool/procfs"
	"proctool/term"
)

// Info is one process's identity as read from /proc/<pid>/status and
// /proc/<pid>/stat.
type Info struct {
	Pid  int
	PPid int
	Pgid int
	Uid  int
	Name string
	// TTY is the process's controlling terminal (e.g. "/dev/pts/3"), or
	// empty if it has none or its controlling terminal is not a pts
	// device.
	TTY string
}

// ReadInfo reads pid's status and stat records and assembles an Info.
func ReadInfo(pid int) (Info, error) {
	attrs, err := readStatusAttributes(pid)
	if err != nil {
		return Info{}, err
	}

	name, ok := attrs["Name"]
	if !ok {
		return Info{}, perrors.WrapWithPid(nil, perrors.ErrMapParse, "read_info", pid)
	}

	ppid, err := parseAttrInt(attrs, "PPid", pid)
	if err != nil {
		return Info{}, err
	}
	pgid, err := parseAttrInt(attrs, "NSpgid", pid)
	if err != nil {
		return Info{}, err
	}

	uidField, ok := attrs["Uid"]
	if !ok {
		return Info{}, perrors.WrapWithPid(nil, perrors.ErrMapParse, "read_info", pid)
	}
	uidStr := strings.Fields(uidField)
	if len(uidStr) == 0 {
		return Info{}, perrors.WrapWithPid(nil, perrors.ErrMapParse, "read_info", pid)
	}
	uid, err := strconv.Atoi(uidStr[0])
	if err != nil {
		return Info{}, perrors.WrapWithDetail(err, perrors.ErrMapParse, "read_info", "malformed Uid field")
	}

	tty := ""
	if path, ttyErr := term.ControllingTerminal(pid); ttyErr == nil {
		tty = path
	}

	return Info{
		Pid:  pid,
		PPid: ppid,
		Pgid: pgid,
		Uid:  uid,
		Name: name,
		TTY:  tty,
	}, nil
}

func parseAttrInt(attrs map[string]string, key string, pid int) (int, error) {
	raw, ok := attrs[key]
	if !ok {
		return 0, perrors.WrapWithPid(nil, perrors.ErrMapParse, "read_info", pid)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, perrors.WrapWithDetail(err, perrors.ErrMapParse, "read_info", fmt.Sprintf("malformed %s field", key))
	}
	return v, nil
}

// readStatusAttributes reads /proc/<pid>/status, splitting each line
// as "name<TAB>value".
func readStatusAttributes(pid int) (map[string]string, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/status", pid))
	if err != nil {
		return nil, perrors.WrapWithPid(err, perrors.ErrMapParse, "read_status", pid)
	}
	defer f.Close()

	attrs := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		name, value, found := strings.Cut(line, ":\t")
		if !found {
			continue
		}
		attrs[name] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, perrors.WrapWithPid(err, perrors.ErrMapParse, "read_status", pid)
	}
	return attrs, nil
}

// ListProcesses returns Info for every process owned by uid.
func ListProcesses(uid int) ([]Info, error) {
	all, err := AllProcesses()
	if err != nil {
		return nil, err
	}
	var owned []Info
	for _, info := range all {
		if info.Uid == uid {
			owned = append(owned, info)
		}
	}
	return owned, nil
}

// AllProcesses returns Info for every process currently visible under
// /proc, skipping any that disappear or fail to parse mid-scan.
func AllProcesses() ([]Info, error) {
	pids, err := procfs.ListPIDs()
	if err != nil {
		return nil, err
	}
	var all []Info
	for _, pid := range pids {
		info, err := ReadInfo(pid)
		if err != nil {
			continue
		}
		all = append(all, info)
	}
	return all, nil
}

// ProcessTree walks pid's ancestry up to pid 0 and returns the chain
// from the root down to pid, innermost last.
func ProcessTree(pid int) ([]Info, error) {
	var chain []Info
	for pid != 0 {
		info, err := ReadInfo(pid)
		if err != nil {
			return nil, err
		}
		chain = append(chain, info)
		pid = info.PPid
	}
	reverse(chain)
	return chain, nil
}

func reverse(infos []Info) {
	for i, j := 0, len(infos)-1; i < j; i, j = i+1, j-1 {
		infos[i], infos[j] = infos[j], infos[i]
	}
}

// Groups partitions every visible process by its process group id.
func Groups() (map[int][]Info, error) {
	all, err := AllProcesses()
	if err != nil {
		return nil, err
	}
	groups := make(map[int][]Info)
	for _, info := range all {
		groups[info.Pgid] = append(groups[info.Pgid], info)
	}
	return groups, nil
}

// Sessions partitions every visible process group leader by its
// session id, as reported by getsid. A group whose leader's session
// lookup fails (e.g. it exited mid-scan) is omitted.
func Sessions() (map[int][]int, error) {
	groups, err := Groups()
	if err != nil {
		return nil, err
	}

	sessions := make(map[int][]int)
	for pgid := range groups {
		sid, err := getsid(pgid)
		if err != nil {
			continue
		}
		sessions[sid] = append(sessions[sid], pgid)
	}
	return sessions, nil
}

// getsid wraps the getsid(2) syscall, reporting the session id of the
// process group leader pgid belongs to.
func getsid(pgid int) (int, error) {
	sid, err := unix.Getsid(pgid)
	if err != nil {
		return 0, perrors.WrapWithPid(err, perrors.ErrMapParse, "getsid", pgid)
	}
	return sid, nil
}
