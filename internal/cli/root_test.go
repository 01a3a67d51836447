package cli

import (
	"bytes"
	"strings"
	"testing"

	"liveassist/internal/version"
)

func TestRootRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"listen", "peer", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v (%v)", name, cmd, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Fatalf("expected persistent config flag")
	}
}

func TestVersionCommand(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != version.Full() {
		t.Fatalf("unexpected version output: %q", out.String())
	}
}

func TestPeerRejectsInvalidConfig(t *testing.T) {
	t.Setenv("LIVEASSIST_CONFIG", "")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LIVEASSIST_LOG_LEVEL", "loud")

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"peer"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("expected config error, got %v", err)
	}
}
