// Package term provides terminal introspection and control for target
// processes: locating a process's controlling terminal, clearing it,
// querying its dimensions, and stuffing bytes into a process's stdin
// queue via the kernel's terminal-stuff ioctl.
package term

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	perrors "proctool/errors"
)

// ptsMajor is the major device number the kernel assigns to pseudo-
// terminal slaves (/dev/pts/N).
const ptsMajor = 136

// ControllingTerminal returns the path to pid's controlling terminal,
// derived from the minor device number recorded in /proc/<pid>/stat
// field 7 (tty_nr), provided the major number is the pts major.
func ControllingTerminal(pid int) (string, error) {
	major, minor, err := ttyNrFromStat(pid)
	if err != nil {
		return "", err
	}
	if major != ptsMajor {
		return "", perrors.WrapWithDetail(nil, perrors.ErrMapParse, "controlling_terminal",
			fmt.Sprintf("tty major %d is not a pts device", major))
	}
	return fmt.Sprintf("/dev/pts/%d", minor), nil
}

// ttyNrFromStat reads field 7 of /proc/<pid>/stat and decodes it into
// (major, minor), accounting for the parenthesized command name (which
// may itself contain whitespace and parentheses).
func ttyNrFromStat(pid int) (major, minor uint32, err error) {
	data, readErr := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if readErr != nil {
		return 0, 0, perrors.WrapWithPid(readErr, perrors.ErrMapParse, "tty_nr_from_stat", pid)
	}

	line := string(data)
	closeParen := strings.LastIndexByte(line, ')')
	if closeParen < 0 {
		return 0, 0, perrors.WrapWithPid(nil, perrors.ErrMapParse, "tty_nr_from_stat", pid)
	}

	fields := strings.Fields(line[closeParen+1:])
	// field[0] after "comm)" is state (field 3); tty_nr is field 7, i.e.
	// index 7-3 = 4 in this trimmed slice.
	const ttyNrIndex = 4
	if len(fields) <= ttyNrIndex {
		return 0, 0, perrors.WrapWithPid(nil, perrors.ErrMapParse, "tty_nr_from_stat", pid)
	}

	var ttyNr int64
	if _, scanErr := fmt.Sscanf(fields[ttyNrIndex], "%d", &ttyNr); scanErr != nil {
		return 0, 0, perrors.WrapWithDetail(scanErr, perrors.ErrMapParse, "tty_nr_from_stat", "malformed tty_nr field")
	}

	// The kernel packs (major, minor) into the 32-bit tty_nr with its
	// "new" dev_t encoding: major in bits 8-19, minor's low byte in bits
	// 0-7 and the rest of minor in bits 20-31:
	// major = (dev & 0xfff00) >> 8
	// minor = (dev & 0xff) | ((dev >> 12) & 0xfff00)
	dev := uint64(ttyNr)
	major = uint32((dev & 0xfff00) >> 8)
	minor = uint32((dev & 0xff) | ((dev >> 12) & 0xfff00))
	return major, minor, nil
}

// Clear writes the escape sequences that clear the screen (ESC [ 2 J)
// and home the cursor (ESC [ 1 ; 1 H) to the terminal at path.
func Clear(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return perrors.WrapWithDetail(err, perrors.ErrExternal, "clear_terminal", path)
	}
	defer f.Close()

	if _, err := f.Write([]byte{0o33, '[', '2', 'J'}); err != nil {
		return perrors.WrapWithDetail(err, perrors.ErrExternal, "clear_terminal", path)
	}
	if _, err := f.Write([]byte{0o33, '[', '1', ';', '1', 'H'}); err != nil {
		return perrors.WrapWithDetail(err, perrors.ErrExternal, "clear_terminal", path)
	}
	return nil
}

// Size returns the (rows, cols) dimensions of the terminal at path via
// the TIOCGWINSZ ioctl.
func Size(path string) (rows, cols uint16, err error) {
	f, openErr := os.OpenFile(path, os.O_WRONLY, 0)
	if openErr != nil {
		return 0, 0, perrors.WrapWithDetail(openErr, perrors.ErrExternal, "terminal_size", path)
	}
	defer f.Close()

	ws, wsErr := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if wsErr != nil {
		return 0, 0, perrors.WrapWithDetail(wsErr, perrors.ErrExternal, "terminal_size", path)
	}
	return ws.Row, ws.Col, nil
}

// WriteStdin appends line plus a trailing newline to pid's stdin queue
// by opening its fd-0 link and issuing one TIOCSTI ioctl per byte.
func WriteStdin(pid int, line string) error {
	path := fmt.Sprintf("/proc/%d/fd/0", pid)
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return perrors.WrapWithPid(err, perrors.ErrExternal, "write_stdin", pid)
	}
	defer f.Close()

	fd := int(f.Fd())
	for _, b := range []byte(line) {
		if err := stuffByte(fd, b); err != nil {
			return perrors.WrapWithPid(err, perrors.ErrExternal, "write_stdin", pid)
		}
	}
	if err := stuffByte(fd, '\n'); err != nil {
		return perrors.WrapWithPid(err, perrors.ErrExternal, "write_stdin", pid)
	}
	return nil
}

func stuffByte(fd int, b byte) error {
	return unix.IoctlSetPointerInt(fd, unix.TIOCSTI, int(b))
}

// Normalize canonicalizes a terminal identifier: "/dev/pts/N" passes
// through unchanged, "pts/N" is prefixed with "/dev/", anything else
// fails.
func Normalize(id string) (string, error) {
	if strings.HasPrefix(id, "/dev/pts/") {
		return id, nil
	}
	if strings.HasPrefix(id, "pts/") {
		return "/dev/" + id, nil
	}
	return "", perrors.WrapWithDetail(nil, perrors.ErrMapParse, "normalize_terminal",
		fmt.Sprintf("could not interpret %q as a tty identifier", id))
}
