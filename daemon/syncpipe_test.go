package daemon

import "testing"

func TestSyncPipe_SignalUnblocksWait(t *testing.T) {
	sp, err := NewSyncPipe()
	if err != nil {
		t.Fatalf("NewSyncPipe failed: %v", err)
	}
	defer sp.Close()

	done := make(chan error, 1)
	go func() {
		done <- sp.Wait()
	}()

	if err := sp.Signal(); err != nil {
		t.Fatalf("Signal failed: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
}
