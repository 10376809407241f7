package assert

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestFailf(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	if Enabled {
		defer func() {
			r := recover()
			v, ok := r.(*Violation)
			if !ok {
				t.Fatalf("expected *Violation panic, got %v", r)
			}
			if !strings.Contains(v.Error(), "robot 3") {
				t.Fatalf("unexpected message: %q", v.Error())
			}
		}()
	}
	v := Failf(logger, "robot %d already serving", 3)
	if Enabled {
		t.Fatalf("expected panic in debug build")
	}
	if v == nil || !strings.Contains(buf.String(), "contract violation: robot 3 already serving") {
		t.Fatalf("log=%q", buf.String())
	}
}

func TestNoError(t *testing.T) {
	if !NoError(nil, nil, "noop") {
		t.Fatalf("nil error should pass")
	}
	if Enabled {
		return
	}
	var buf bytes.Buffer
	if NoError(log.New(&buf, "", 0), errors.New("cell [3,4] occupied"), "tick 9 after cache drop") {
		t.Fatalf("error should fail")
	}
	if !strings.Contains(buf.String(), "tick 9 after cache drop: cell [3,4] occupied") {
		t.Fatalf("log=%q", buf.String())
	}
}
