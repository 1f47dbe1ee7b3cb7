package migrate

import (
	"errors"
	"strings"
	"testing"
)

func appendStep(version int, suffix string) Step {
	return Step{Version: version, Description: "append " + suffix, Apply: func(d []byte) ([]byte, error) {
		return append(d, suffix...), nil
	}}
}

// ///////////////////////////////////////////////
// Register
// ///////////////////////////////////////////////

func TestRegisterKeepsStepsSorted(t *testing.T) {
	s := &Schema{Name: "test", Current: 4}
	s.Register(appendStep(4, "-v4"))
	s.Register(appendStep(2, "-v2"))
	s.Register(appendStep(3, "-v3"))

	var got []int
	for _, st := range s.Steps {
		got = append(got, st.Version)
	}
	if len(got) != 3 || got[0] != 2 || got[1] != 3 || got[2] != 4 {
		t.Fatalf("step order = %v, want [2 3 4]", got)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	s := &Schema{Name: "config", Current: 2}
	s.Register(Step{Version: 2, Description: "first"})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on duplicate version")
		}
		if msg, _ := r.(string); !strings.Contains(msg, `"first"`) {
			t.Errorf("panic message %q should name the existing step", msg)
		}
	}()
	s.Register(Step{Version: 2, Description: "second"})
}

// ///////////////////////////////////////////////
// Pending / Outdated
// ///////////////////////////////////////////////

func TestPending(t *testing.T) {
	s := &Schema{Name: "test", Current: 3}
	s.Register(appendStep(2, "-v2"))
	s.Register(appendStep(3, "-v3"))

	tests := []struct {
		from int
		want int
	}{
		{0, 2},
		{1, 2},
		{2, 1},
		{3, 0},
		{9, 0},
	}
	for _, tt := range tests {
		if got := len(s.Pending(tt.from)); got != tt.want {
			t.Errorf("Pending(%d) = %d steps, want %d", tt.from, got, tt.want)
		}
	}
}

func TestOutdated(t *testing.T) {
	s := &Schema{Name: "config", Current: 2}
	if !s.Outdated(1) {
		t.Error("v1 should be outdated")
	}
	if s.Outdated(2) {
		t.Error("v2 should be current")
	}
	if s.Outdated(3) {
		t.Error("a newer document is not outdated")
	}
}

// ///////////////////////////////////////////////
// Upgrade
// ///////////////////////////////////////////////

func TestUpgradeAppliesPendingInOrder(t *testing.T) {
	s := &Schema{Name: "test", Current: 3}
	s.Register(appendStep(3, "-v3"))
	s.Register(appendStep(2, "-v2"))

	out, version, err := s.Upgrade([]byte("doc"), 1)
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	if version != 3 {
		t.Errorf("version = %d, want 3", version)
	}
	if string(out) != "doc-v2-v3" {
		t.Errorf("out = %q, want doc-v2-v3", out)
	}
}

func TestUpgradeSkipsAppliedSteps(t *testing.T) {
	s := &Schema{Name: "test", Current: 2}
	s.Register(Step{Version: 2, Description: "never", Apply: func([]byte) ([]byte, error) {
		t.Fatal("step at or below the starting version ran")
		return nil, nil
	}})

	out, version, err := s.Upgrade([]byte("doc"), 2)
	if err != nil {
		t.Fatalf("Upgrade: %v", err)
	}
	if version != 2 || string(out) != "doc" {
		t.Errorf("got (%q, %d), want (doc, 2)", out, version)
	}
}

func TestUpgradeStopsOnError(t *testing.T) {
	errBad := errors.New("bad entries")
	s := &Schema{Name: "store", Current: 3}
	s.Register(appendStep(2, "-v2"))
	s.Register(Step{Version: 3, Description: "fails", Apply: func([]byte) ([]byte, error) {
		return nil, errBad
	}})

	out, version, err := s.Upgrade([]byte("doc"), 1)
	if !errors.Is(err, errBad) {
		t.Fatalf("err = %v, want wrapped errBad", err)
	}
	if !strings.HasPrefix(err.Error(), "store: upgrade to v3") {
		t.Errorf("error %q should name the schema and target version", err)
	}
	if out != nil {
		t.Errorf("out = %q, want nil on failure", out)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2 (last successful step)", version)
	}
}

func TestUpgradeNoSteps(t *testing.T) {
	s := &Schema{Name: "store", Current: 1}
	out, version, err := s.Upgrade([]byte("doc"), 1)
	if err != nil || version != 1 || string(out) != "doc" {
		t.Fatalf("Upgrade = (%q, %d, %v), want unchanged", out, version, err)
	}
}

// ///////////////////////////////////////////////
// Built-in schemas
// ///////////////////////////////////////////////

func TestBuiltinSchemas(t *testing.T) {
	if Config.Current != 2 {
		t.Errorf("Config.Current = %d, want 2", Config.Current)
	}
	if Store.Current != 1 {
		t.Errorf("Store.Current = %d, want 1", Store.Current)
	}
}
