package assert

import "testing"

func TestCheckPassesSilently(t *testing.T) {
	Check(true, "should never fire")
}

func TestCheckPanicsOnFalse(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Check(1 == 2, "1 != 2")
}

func TestDisabledSkipsPanic(t *testing.T) {
	Enabled = false
	defer func() { Enabled = true }()
	Check(false, "should not panic while disabled")
}
