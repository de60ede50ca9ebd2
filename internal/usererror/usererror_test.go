package usererror

import (
	"errors"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		table string
		want  string
	}{
		{"network unreachable", errors.New("dial tcp: connection refused"), "", "Network unreachable. Sync will retry automatically."},
		{"permission denied with table", errors.New("pq: permission denied for table listings"), "listings", "Permission denied syncing listings"},
		{"permission denied code", errors.New("error 42501: access denied"), "", "Permission denied."},
		{"generic", errors.New("boom"), "", "Sync failed: boom"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Classify(c.err, c.table)
			if got != c.want {
				t.Errorf("Classify() = %q, want %q", got, c.want)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil, "x"); got != "" {
		t.Errorf("Classify(nil) = %q, want empty", got)
	}
}

func TestClassifyContainsTable(t *testing.T) {
	got := Classify(errors.New("permission denied"), "tasks")
	if !strings.Contains(got, "tasks") {
		t.Errorf("expected table name in message, got %q", got)
	}
}
