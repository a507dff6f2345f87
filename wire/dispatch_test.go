package wire

import (
	"testing"

	perrors "proctool/errors"
)

func TestDispatch_PauseNoSuchProcess(t *testing.T) {
	err := Dispatch(Command{Type: CommandPause, Pid: -1})
	if err == nil {
		t.Fatal("expected error pausing pid -1")
	}
}

func TestDispatch_ThawRequiresPath(t *testing.T) {
	err := Dispatch(Command{Type: CommandThaw})
	if err == nil {
		t.Fatal("expected error thawing with no path")
	}
	if !perrors.IsKind(err, perrors.ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestDispatch_UndefinedCommandsRefuseToGuess(t *testing.T) {
	for _, typ := range []CommandType{CommandObliterate, CommandOblivion, CommandSpawn} {
		err := Dispatch(Command{Type: typ})
		if err == nil {
			t.Errorf("%s: expected an error rather than silently succeeding", typ)
		}
		if !perrors.IsKind(err, perrors.ErrProtocol) {
			t.Errorf("%s: expected ErrProtocol, got %v", typ, err)
		}
	}
}

func TestDispatch_StubbedCommandsReportNotImplemented(t *testing.T) {
	for _, typ := range []CommandType{CommandRot13, CommandColorizeStderr} {
		err := Dispatch(Command{Type: typ})
		if err == nil {
			t.Errorf("%s: expected a not-implemented error", typ)
		}
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	err := Dispatch(Command{Type: "NotARealCommand"})
	if err == nil {
		t.Fatal("expected error for unknown command type")
	}
}
