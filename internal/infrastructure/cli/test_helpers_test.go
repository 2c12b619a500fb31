package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/kalk/internal/infrastructure/wiring"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// initFixture creates a workspace with p-100 planned from a 7200 EUR offer
// (100 h at 72), 70 approved setup hours and 10 pending teardown hours of e1.
func initFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	ws, err := wiring.OpenWorkspace(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.Initialize(); err != nil {
		t.Fatal(err)
	}
	_ = ws.Close()

	files := map[string]string{
		"projects.yaml":    "- id: p-100\n  name: Stand\n  offer_id: o-1\n- id: p-200\n  name: Booth\n",
		"offers.yaml":      "- id: o-1\n  currency: EUR\n  net_amount: 7200\n",
		"assignments.yaml": "- employee_id: e1\n  employee_name: Anna\n  project_id: p-100\n  active:\n    from: 2026-06-01\n",
		"time_entries.yaml": "- id: t1\n  employee_id: e1\n  project_id: p-100\n  date: 2026-06-02\n  hours: 70\n  status: approved\n" +
			"- id: t2\n  employee_id: e1\n  project_id: p-100\n  date: 2026-06-20\n  hours: 10\n  status: pending\n  activity_type: teardown\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(root, ".kalk", "sources", name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// runCLI executes the root command against dir and returns stdout and stderr.
// Flag values are reset first since cobra keeps them between runs.
func runCLI(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(RootCmd)
	t.Setenv("USER", "tester")

	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs(append([]string{"-C", dir}, args...))
	err := RootCmd.Execute()
	return out.String(), errOut.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
