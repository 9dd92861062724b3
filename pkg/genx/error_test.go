package genx

import (
	"errors"
	"testing"
)

func TestState(t *testing.T) {
	cause := errors.New("boom")
	st := Error(Usage{}, cause)
	if !errors.Is(st, cause) {
		t.Error("Error state does not unwrap to its cause")
	}
	if st.Cause() != cause {
		t.Errorf("Cause() = %v, want %v", st.Cause(), cause)
	}
	if got := st.Error(); got != "genx: generate error: boom" {
		t.Errorf("Error() = %q", got)
	}

	bl := Blocked(Usage{}, "unsafe")
	if !errors.Is(bl, ErrBlocked) || bl.Refusal() != "unsafe" || bl.Cause() != nil {
		t.Errorf("Blocked state = %v, refusal %q, cause %v", bl, bl.Refusal(), bl.Cause())
	}
	if bl.Status() != StatusBlocked || st.Status() != StatusError {
		t.Errorf("statuses = %v, %v", bl.Status(), st.Status())
	}
}
