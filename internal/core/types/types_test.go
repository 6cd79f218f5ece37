package types

import (
	"context"
	"testing"

	"github.com/goccy/go-yaml"
)

func TestBytesYAML(t *testing.T) {
	var v struct {
		Limit Bytes `yaml:"limit"`
		Min   Bytes `yaml:"min"`
	}
	if err := yaml.Unmarshal([]byte("limit: 1.5 MiB\nmin: 2048\n"), &v); err != nil {
		t.Fatal(err)
	}
	if v.Limit != 1572864 || v.Min != 2048 {
		t.Fatalf("unexpected values %d, %d", v.Limit, v.Min)
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	v.Limit, v.Min = 0, 0
	if err := yaml.Unmarshal(out, &v); err != nil {
		t.Fatal(err)
	}
	if v.Limit != 1572864 || v.Min != 2048 {
		t.Errorf("round trip changed values: %q", out)
	}
}

func TestBytesMB(t *testing.T) {
	if got := Bytes(3 * 1024 * 1024).MB(); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}

func TestTaskStatusRelocation(t *testing.T) {
	for _, s := range []TaskStatus{TaskFetched, TaskFetchIncomplete, TaskError} {
		if !s.NeedsRelocation() {
			t.Errorf("%s must trigger relocation", s)
		}
	}
	for _, s := range []TaskStatus{TaskNoResults, TaskAlreadyExists, TaskPlanned} {
		if s.NeedsRelocation() {
			t.Errorf("%s must not trigger relocation", s)
		}
	}
}

func TestInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if Interrupted(ctx) {
		t.Fatal("fresh context reported as interrupted")
	}
	cancel()
	if !Interrupted(ctx) {
		t.Fatal("cancelled context not reported")
	}
}
