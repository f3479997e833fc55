package groupid

import (
	"strconv"
	"strings"
	"testing"
)

func TestNewUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(PrefixSale)
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestNewShape(t *testing.T) {
	id := New(PrefixTransfer)
	if !strings.HasPrefix(id, "T") {
		t.Fatalf("id %s missing prefix", id)
	}
	if _, err := strconv.ParseInt(id[1:], 10, 64); err != nil {
		t.Fatalf("id %s has non-numeric body: %v", id, err)
	}
}

func TestKind(t *testing.T) {
	if Kind("S1756400000000") != "S" {
		t.Fatal("expected S")
	}
	if Kind("") != "" {
		t.Fatal("expected empty kind")
	}
}
