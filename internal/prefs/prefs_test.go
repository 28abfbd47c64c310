package prefs

import "testing"

func TestRestore_DefaultsFalse(t *testing.T) {
	s := New()
	if s.Restore("nobody") {
		t.Error("Restore for unseen submitter = true, want false")
	}
}

func TestToggleRestore(t *testing.T) {
	s := New()

	if got := s.ToggleRestore("alice"); !got {
		t.Error("first toggle = false, want true")
	}
	if !s.Restore("alice") {
		t.Error("Restore after toggle = false, want true")
	}
	if got := s.ToggleRestore("alice"); got {
		t.Error("second toggle = true, want false")
	}
}

func TestToggleRestore_IsolatedPerSubmitter(t *testing.T) {
	s := New()
	s.ToggleRestore("alice")

	if s.Restore("bob") {
		t.Error("toggling alice changed bob's preference")
	}
}
