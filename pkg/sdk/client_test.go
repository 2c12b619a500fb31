package sdk

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/felixgeelhaar/mcp-go/client"
)

func TestTextResult(t *testing.T) {
	t.Run("extracts text", func(t *testing.T) {
		r := &client.ToolResult{
			Content: []client.ContentItem{{Type: "text", Text: "hello"}},
		}
		got, err := textResult(r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "hello" {
			t.Fatalf("got %q, want %q", got, "hello")
		}
	})

	t.Run("empty content", func(t *testing.T) {
		r := &client.ToolResult{}
		_, err := textResult(r)
		if err != ErrNoContent {
			t.Fatalf("got %v, want ErrNoContent", err)
		}
	})
}

func TestUnmarshalText(t *testing.T) {
	t.Run("valid JSON", func(t *testing.T) {
		r := &client.ToolResult{
			Content: []client.ContentItem{{Type: "text", Text: `{"project_id":"p-100","source":"offer"}`}},
		}
		pc, err := unmarshalText[calculation.PreCalculation](r)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pc.ProjectID != "p-100" || pc.Source != calculation.SourceOffer {
			t.Fatalf("unexpected record: %+v", pc)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		r := &client.ToolResult{
			Content: []client.ContentItem{{Type: "text", Text: "not json"}},
		}
		_, err := unmarshalText[calculation.PreCalculation](r)
		if err == nil {
			t.Fatal("expected error for invalid JSON")
		}
	})

	t.Run("empty content", func(t *testing.T) {
		r := &client.ToolResult{}
		_, err := unmarshalText[calculation.PreCalculation](r)
		if err != ErrNoContent {
			t.Fatalf("got %v, want ErrNoContent", err)
		}
	})
}

func TestMajorVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1.0.0", "1"},
		{"2.3.4", "2"},
		{"10.0.1", "10"},
		{"0.1.0", "0"},
		{"3", "3"},
	}
	for _, tt := range tests {
		got := majorVersion(tt.input)
		if got != tt.want {
			t.Errorf("majorVersion(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestToolError(t *testing.T) {
	e := &ToolError{Tool: "kalk_recompute", Message: "bad"}
	if !strings.Contains(e.Error(), "kalk_recompute") {
		t.Fatalf("error should contain tool name: %s", e.Error())
	}
}

func findRepoRoot(t *testing.T) string {
	t.Helper()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	dir := cwd
	for i := 0; i < 10; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}

func writeFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	sources := filepath.Join(root, ".kalk", "sources")
	if err := os.MkdirAll(sources, 0o700); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"projects.yaml":    "- id: p-100\n  name: Stand\n  offer_id: o-1\n",
		"offers.yaml":      "- id: o-1\n  currency: EUR\n  net_amount: 7200\n",
		"assignments.yaml": "- employee_id: e1\n  employee_name: Anna\n  project_id: p-100\n  active:\n    from: 2026-06-01\n",
		"time_entries.yaml": "- id: t1\n  employee_id: e1\n  project_id: p-100\n  date: 2026-06-02\n  hours: 65\n  status: approved\n" +
			"- id: t2\n  employee_id: e1\n  project_id: p-100\n  date: 2026-06-20\n  hours: 30\n  status: approved\n  activity_type: teardown\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(sources, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestIntegrationRecomputeAndClassify(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := findRepoRoot(t)
	workspace := writeFixture(t)

	binPath := filepath.Join(t.TempDir(), "kalk")
	build := exec.Command("go", "build", "-o", binPath, "./cmd/kalk")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build kalk: %v\n%s", err, out)
	}

	cmd := fmt.Sprintf("cd '%s' && '%s' mcp --transport stdio", workspace, binPath)
	transport, err := client.NewStdioTransport("bash", "-lc", cmd)
	if err != nil {
		t.Fatalf("stdio transport: %v", err)
	}
	defer transport.Close()

	c := NewClient(transport, WithTimeout(60*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	info, err := c.Initialize(ctx)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !info.Capabilities.Tools {
		t.Fatalf("expected tools capability")
	}

	pc, err := c.PreCalculation(ctx, "p-100")
	if err != nil {
		t.Fatalf("precalc: %v", err)
	}
	if pc != nil {
		t.Fatalf("expected no stored plan, got %+v", pc)
	}

	res, err := c.Recompute(ctx, "p-100")
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if res.Status != calculation.StatusGreen || !res.Written {
		t.Fatalf("unexpected recompute result: %+v", res)
	}

	ec, err := c.ClassifyEmployee(ctx, "p-100", "e1")
	if err != nil {
		t.Fatalf("classify employee: %v", err)
	}
	if ec.EmployeeName != "Anna" {
		t.Fatalf("unexpected employee: %+v", ec)
	}

	if _, err := c.Recompute(ctx, "p-999"); err == nil {
		t.Fatal("expected unknown project to fail")
	}

	schema, err := c.GetSchema(ctx)
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if schema.SchemaVersion == "" || len(schema.Tools) == 0 {
		t.Fatalf("unexpected schema: %+v", schema)
	}
	if err := c.Compatible(ctx); err != nil {
		t.Fatalf("compatible: %v", err)
	}
}
