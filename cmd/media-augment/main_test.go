package main

import (
	"strings"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "scan", "download"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}

func TestDownloadRequiresArgs(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"download"})
	root.SetOut(&strings.Builder{})
	root.SetErr(&strings.Builder{})
	if err := root.Execute(); err == nil {
		t.Fatal("expected an argument error")
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"Item", "Size"},
		[][]string{{"abc123", "1.2 MB"}, {"short"}},
		[]columnAlignment{alignLeft, alignRight},
	)
	for _, want := range []string{"ITEM", "SIZE", "abc123", "1.2 MB", "short"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("empty headers should render nothing")
	}
}
