package wire

import (
	"fmt"

	perrors "proctool/errors"
	"proctool/logging"
	"proctool/ops"
	"proctool/snapshot"
	"proctool/term"
)

// Dispatch runs one command record to completion. It never panics on
// an unknown or unimplemented command; it returns an error, which the
// daemon's accept loop logs and moves past (spec §7: a failing command
// never kills the daemon).
func Dispatch(cmd Command) error {
	switch cmd.Type {
	case CommandPause:
		return ops.Pause(cmd.Pid)

	case CommandResume:
		return ops.Resume(cmd.Pid)

	case CommandRedirect:
		return ops.Redirect(cmd.Pid, cmd.TTY)

	case CommandRewind:
		return ops.Rewind(cmd.Pid)

	case CommandTakeover:
		return ops.Takeover(cmd.Pid, cmd.Bin, cmd.Pause)

	case CommandFreeze:
		return dispatchFreeze(cmd)

	case CommandThaw:
		return dispatchThaw(cmd)

	case CommandWriteStdin:
		return term.WriteStdin(cmd.Pid, cmd.Message)

	case CommandRot13, CommandColorizeStderr:
		// Declared in original_source's command enum but never given a
		// body there; rather than invent behavior, this is a deliberate
		// stub (spec §9 open question).
		return perrors.WrapWithDetail(nil, perrors.ErrProtocol, "dispatch",
			fmt.Sprintf("%s: not implemented", cmd.Type))

	case CommandObliterate, CommandOblivion, CommandSpawn:
		return perrors.WrapWithDetail(nil, perrors.ErrProtocol, "dispatch",
			fmt.Sprintf("%s: undefined in source, refusing to guess semantics", cmd.Type))

	default:
		return perrors.WrapWithDetail(nil, perrors.ErrProtocol, "dispatch",
			fmt.Sprintf("unknown command %q", cmd.Type))
	}
}

// snapshotPath is the on-disk name Freeze writes to and Thaw expects,
// one file per pid in the current directory (spec scenario 5: "Freeze
// pid P to P.state").
func snapshotPath(pid int) string {
	return fmt.Sprintf("%d.state", pid)
}

func dispatchFreeze(cmd Command) error {
	snap, err := ops.Freeze(cmd.Pid)
	if err != nil {
		return err
	}
	path := snapshotPath(cmd.Pid)
	if err := snap.Save(path); err != nil {
		return err
	}
	logging.WithPath(logging.Default(), path).Info("freeze: snapshot written")
	return nil
}

func dispatchThaw(cmd Command) error {
	path := cmd.Path
	if path == "" {
		return perrors.WrapWithDetail(nil, perrors.ErrProtocol, "dispatch_thaw", "thaw requires a snapshot path")
	}
	log := logging.WithPath(logging.Default(), path)
	snap, err := snapshot.Load(path)
	if err != nil {
		return err
	}
	pid, err := ops.Thaw(snap)
	if err != nil {
		return err
	}
	log.Info("thaw: process restored", "pid", pid)
	return nil
}
