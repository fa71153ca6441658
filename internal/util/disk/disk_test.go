package disk

import "testing"

func TestUsage(t *testing.T) {
	sp, err := Usage(t.TempDir())
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if sp.Total == 0 || sp.Free > sp.Total {
		t.Fatalf("implausible space: %+v", sp)
	}
	free, err := FreeBytes(t.TempDir())
	if err != nil || free == 0 {
		t.Fatalf("free bytes: %d %v", free, err)
	}
}

func TestUsageMissingPath(t *testing.T) {
	if _, err := Usage("/nonexistent/tablerepl/path"); err == nil {
		t.Fatalf("expected error")
	}
}
