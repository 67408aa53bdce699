package cmd

import "testing"

func TestIsMutatingCommand(t *testing.T) {
	// Commands that should trigger auto-sync
	for _, name := range []string{"add", "edit", "rm", "delete"} {
		if !isMutatingCommand(name) {
			t.Errorf("expected %q to be mutating", name)
		}
	}

	// Commands that should NOT trigger auto-sync
	for _, name := range []string{"ls", "list", "show", "sync", "ref", "seasons", "daemon", "trigger", "logout", "requeue", "help"} {
		if isMutatingCommand(name) {
			t.Errorf("expected %q to NOT be mutating", name)
		}
	}
}
