package logging

import "testing"

func TestNewBuildsBothModes(t *testing.T) {
	t.Parallel()
	for _, dev := range []bool{true, false} {
		logger, err := New(dev)
		if err != nil {
			t.Fatalf("New(%v) failed: %v", dev, err)
		}
		if logger == nil {
			t.Fatalf("New(%v) returned nil logger", dev)
		}
	}
}
