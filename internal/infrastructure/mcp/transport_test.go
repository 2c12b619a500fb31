package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/mcp-go/client"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int              `json:"id"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func TestMCPHTTPTransport(t *testing.T) {
	root := initFixture(t)

	prevVersion, prevCommit, prevDate := Version, BuildCommit, BuildDate
	Version, BuildCommit, BuildDate = "test", "commit123", "2026-01-01"
	t.Cleanup(func() {
		Version, BuildCommit, BuildDate = prevVersion, prevCommit, prevDate
	})

	addr := pickFreeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := NewServer(root)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	defer func() { _ = srv.Close() }()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ServeHTTP(ctx, addr)
	}()

	waitForHTTP(t, addr, 5*time.Second)

	resp := sendJSONRPC(t, addr, jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2024-11-05",
			"clientInfo": map[string]any{
				"name":    "kalk-test",
				"version": "0.0.0",
			},
			"capabilities": map[string]any{},
		},
	})

	if resp.Error != nil {
		t.Fatalf("initialize error: %v", resp.Error.Message)
	}
	if resp.Result == nil {
		t.Fatalf("initialize missing result")
	}
	var result map[string]any
	if err := json.Unmarshal(*resp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}

	serverInfo := result["serverInfo"].(map[string]any)
	if serverInfo["version"] != "test" {
		t.Fatalf("unexpected version: %v", serverInfo["version"])
	}
	capabilities := result["capabilities"].(map[string]any)
	if _, ok := capabilities["tools"]; !ok {
		t.Fatalf("expected tools capability")
	}

	resp = sendJSONRPC(t, addr, jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/list",
	})
	if resp.Error != nil {
		t.Fatalf("tools/list error: %v", resp.Error.Message)
	}
	var listed struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(*resp.Result, &listed); err != nil {
		t.Fatalf("unmarshal tools: %v", err)
	}
	if len(listed.Tools) != 10 {
		t.Fatalf("expected 10 tools, got %d", len(listed.Tools))
	}
}

func TestMCPHTTPTransport_CalculationTools(t *testing.T) {
	root := initFixture(t)
	addr := pickFreeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := NewServer(root)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	defer func() { _ = srv.Close() }()
	go func() { _ = srv.ServeHTTP(ctx, addr) }()
	waitForHTTP(t, addr, 5*time.Second)

	var params struct {
		HourlyRate   decimal.Decimal `json:"hourly_rate"`
		Distribution struct {
			Setup    int `json:"setup"`
			Teardown int `json:"teardown"`
		} `json:"distribution"`
	}
	decodeToolText(t, callToolHTTP(t, addr, 1, "kalk_get_parameters", map[string]any{}), &params)
	if !params.HourlyRate.Equal(decimal.NewFromInt(72)) || params.Distribution.Setup != 70 {
		t.Fatalf("unexpected parameters %+v", params)
	}

	// 7200 EUR offer at 72 EUR/h split 70/30
	var derived struct {
		Pre struct {
			Setup    decimal.Decimal `json:"planned_hours_setup"`
			Teardown decimal.Decimal `json:"planned_hours_teardown"`
			Source   string          `json:"source"`
		} `json:"pre_calculation"`
	}
	decodeToolText(t, callToolHTTP(t, addr, 2, "kalk_derive_precalc", map[string]any{"project_id": "p-100"}), &derived)
	if derived.Pre.Source != "offer" || derived.Pre.Setup.IntPart() != 70 || derived.Pre.Teardown.IntPart() != 30 {
		t.Fatalf("unexpected derivation %+v", derived)
	}

	var recomputed struct {
		Status  string `json:"status"`
		Written bool   `json:"written"`
	}
	decodeToolText(t, callToolHTTP(t, addr, 3, "kalk_recompute", map[string]any{"project_id": "p-100"}), &recomputed)
	if recomputed.Status != "green" || !recomputed.Written {
		t.Fatalf("unexpected recompute %+v", recomputed)
	}
	decodeToolText(t, callToolHTTP(t, addr, 4, "kalk_recompute", map[string]any{"project_id": "p-100"}), &recomputed)
	if recomputed.Written {
		t.Fatal("expected the second recompute to leave storage untouched")
	}

	if resp := callToolHTTP(t, addr, 5, "kalk_recompute", map[string]any{}); resp.Error == nil {
		t.Error("expected an error without project_id")
	}
	if resp := callToolHTTP(t, addr, 6, "kalk_recompute", map[string]any{"project_id": "p-999"}); resp.Error == nil {
		t.Error("expected an error for an unknown project")
	}
	if resp := callToolHTTP(t, addr, 7, "kalk_update_parameters", map[string]any{"distribution": "60/30"}); resp.Error == nil {
		t.Error("expected an error for a distribution not adding up to 100")
	}
}

func TestMCPStdioTransport(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the kalk binary")
	}
	root := findRepoRoot(t)
	workspace := initFixture(t)
	binPath := filepath.Join(t.TempDir(), "kalk")
	build := exec.Command("go", "build", "-o", binPath, "./cmd/kalk")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build kalk: %v\n%s", err, out)
	}

	cmd := fmt.Sprintf("cd %s && %s mcp --transport stdio", shellEscape(workspace), shellEscape(binPath))
	transport, err := client.NewStdioTransport("bash", "-lc", cmd)
	if err != nil {
		t.Fatalf("stdio transport: %v", err)
	}
	defer func() { _ = transport.Close() }()

	mcpClient := client.New(transport, client.WithTimeout(60*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	info, err := mcpClient.Initialize(ctx)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !info.Capabilities.Tools {
		t.Fatalf("expected tools capability")
	}

	tools, err := mcpClient.ListTools(ctx)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	found := false
	for _, tool := range tools {
		if tool.Name == "kalk_recompute" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected kalk_recompute tool")
	}

	result, err := mcpClient.CallTool(ctx, "kalk_recompute", map[string]any{"project_id": "p-100"})
	if err != nil {
		t.Fatalf("call kalk_recompute: %v", err)
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "green") {
		t.Fatalf("unexpected kalk_recompute response: %+v", result.Content)
	}
}

func TestMCPWebSocketTransport(t *testing.T) {
	root := initFixture(t)

	prevVersion, prevCommit, prevDate := Version, BuildCommit, BuildDate
	Version, BuildCommit, BuildDate = "test", "commit123", "2026-01-01"
	t.Cleanup(func() {
		Version, BuildCommit, BuildDate = prevVersion, prevCommit, prevDate
	})

	addr := pickFreeAddr(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := NewServer(root)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	defer func() { _ = srv.Close() }()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ServeWebSocket(ctx, addr)
	}()

	// Wait for WebSocket server to start
	time.Sleep(100 * time.Millisecond)

	// Connect using raw WebSocket (mcp-go client doesn't have WebSocket transport)
	wsURL := fmt.Sprintf("ws://%s/mcp", addr)
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer func() { _ = ws.Close() }()

	// Send initialize request
	initReq := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": "2024-11-05",
			"clientInfo": map[string]any{
				"name":    "kalk-ws-test",
				"version": "0.0.0",
			},
			"capabilities": map[string]any{},
		},
	}
	if err := ws.WriteJSON(initReq); err != nil {
		t.Fatalf("write initialize: %v", err)
	}

	// Read initialize response
	var initResp jsonRPCResponse
	if err := ws.ReadJSON(&initResp); err != nil {
		t.Fatalf("read initialize: %v", err)
	}
	if initResp.Error != nil {
		t.Fatalf("initialize error: %v", initResp.Error.Message)
	}
	if initResp.Result == nil {
		t.Fatalf("initialize missing result")
	}

	var result map[string]any
	if err := json.Unmarshal(*initResp.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	capabilities := result["capabilities"].(map[string]any)
	if _, ok := capabilities["tools"]; !ok {
		t.Fatalf("expected tools capability")
	}

	// Send tools/list request
	toolsReq := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/list",
	}
	if err := ws.WriteJSON(toolsReq); err != nil {
		t.Fatalf("write tools/list: %v", err)
	}

	// Read tools/list response
	var toolsResp jsonRPCResponse
	if err := ws.ReadJSON(&toolsResp); err != nil {
		t.Fatalf("read tools/list: %v", err)
	}
	if toolsResp.Error != nil {
		t.Fatalf("tools/list error: %v", toolsResp.Error.Message)
	}

	var toolsResult map[string]any
	if err := json.Unmarshal(*toolsResp.Result, &toolsResult); err != nil {
		t.Fatalf("unmarshal tools: %v", err)
	}

	tools, ok := toolsResult["tools"].([]any)
	if !ok {
		t.Fatalf("expected tools array")
	}

	found := false
	for _, tool := range tools {
		toolMap := tool.(map[string]any)
		if toolMap["name"] == "kalk_recompute" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected kalk_recompute tool")
	}

	hoursReq := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      3,
		Method:  "tools/call",
		Params: map[string]any{
			"name":      "kalk_hours",
			"arguments": map[string]any{"project_id": "p-100", "activity": "teardown"},
		},
	}
	if err := ws.WriteJSON(hoursReq); err != nil {
		t.Fatalf("write tools/call: %v", err)
	}
	var hoursResp jsonRPCResponse
	if err := ws.ReadJSON(&hoursResp); err != nil {
		t.Fatalf("read tools/call: %v", err)
	}
	var totals struct {
		Approved decimal.Decimal `json:"approved_hours"`
		Pending  decimal.Decimal `json:"pending_hours"`
	}
	decodeToolText(t, hoursResp, &totals)
	if totals.Approved.IntPart() != 30 || totals.Pending.IntPart() != 4 {
		t.Fatalf("unexpected teardown totals %+v", totals)
	}
}

func callToolHTTP(t *testing.T, addr string, id int, name string, args map[string]any) jsonRPCResponse {
	t.Helper()
	return sendJSONRPC(t, addr, jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "tools/call",
		Params:  map[string]any{"name": name, "arguments": args},
	})
}

// decodeToolText unmarshals the JSON text content of a tools/call result.
func decodeToolText(t *testing.T, resp jsonRPCResponse, v any) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("tools/call error: %s", resp.Error.Message)
	}
	if resp.Result == nil {
		t.Fatal("tools/call missing result")
	}
	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(*resp.Result, &result); err != nil {
		t.Fatalf("unmarshal tools/call result: %v", err)
	}
	if len(result.Content) == 0 {
		t.Fatal("tools/call returned no content")
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), v); err != nil {
		t.Fatalf("unmarshal tool text %q: %v", result.Content[0].Text, err)
	}
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	_ = listener.Close()
	return addr
}

func waitForHTTP(t *testing.T, addr string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://%s/health", addr)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("server did not become healthy at %s", url)
}

func sendJSONRPC(t *testing.T, addr string, req jsonRPCRequest) jsonRPCResponse {
	t.Helper()
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	url := fmt.Sprintf("http://%s/mcp", addr)
	httpResp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("http post: %v", err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // best-effort close on read body

	var resp jsonRPCResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
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

func shellEscape(value string) string {
	escaped := strings.ReplaceAll(value, "'", "'\"'\"")
	return "'" + escaped + "'"
}
