package term

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"already normalized", "/dev/pts/3", "/dev/pts/3", false},
		{"short form", "pts/3", "/dev/pts/3", false},
		{"short form double digit", "pts/42", "/dev/pts/42", false},
		{"unrecognized", "ttyS0", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestClear_MissingPath(t *testing.T) {
	if err := Clear("/nonexistent/pts/device"); err == nil {
		t.Fatal("expected error clearing nonexistent terminal path")
	}
}

func TestSize_MissingPath(t *testing.T) {
	if _, _, err := Size("/nonexistent/pts/device"); err == nil {
		t.Fatal("expected error querying size of nonexistent terminal path")
	}
}

func TestWriteStdin_MissingProcess(t *testing.T) {
	if err := WriteStdin(-1, "hello"); err == nil {
		t.Fatal("expected error writing stdin of nonexistent pid")
	}
}

func TestControllingTerminal_MissingProcess(t *testing.T) {
	if _, err := ControllingTerminal(-1); err == nil {
		t.Fatal("expected error resolving controlling terminal of nonexistent pid")
	}
}
