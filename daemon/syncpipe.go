package daemon

import (
	"os"

	perrors "proctool/errors"
)

// SyncPipe is a one-byte rendezvous between a daemonizing parent and
// its detached child: the parent blocks on Wait until the child calls
// Signal, so the parent only exits once the child has actually reached
// its listen loop.
type SyncPipe struct {
	parent *os.File
	child  *os.File
}

// NewSyncPipe creates a new synchronization pipe.
func NewSyncPipe() (*SyncPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, perrors.Wrap(err, perrors.ErrExternal, "new_sync_pipe")
	}
	return &SyncPipe{parent: r, child: w}, nil
}

// ParentFile returns the parent (reading) end of the pipe.
func (s *SyncPipe) ParentFile() *os.File {
	return s.parent
}

// ChildFile returns the child (writing) end of the pipe.
func (s *SyncPipe) ChildFile() *os.File {
	return s.child
}

// Close closes both ends of the pipe.
func (s *SyncPipe) Close() {
	if s.parent != nil {
		s.parent.Close()
	}
	if s.child != nil {
		s.child.Close()
	}
}

// Wait blocks until the child calls Signal or closes its end.
func (s *SyncPipe) Wait() error {
	buf := make([]byte, 1)
	_, err := s.parent.Read(buf)
	return err
}

// Signal unblocks a parent waiting in Wait.
func (s *SyncPipe) Signal() error {
	_, err := s.child.Write([]byte{0})
	return err
}
