// Package sdk provides a typed Go client for the kalk MCP server.
//
// The client wraps mcp-go/client.CallTool with one method per kalk tool and
// retries transport failures via fortify. Tool errors are not retried.
//
// Usage:
//
//	transport, _ := client.NewStdioTransport("kalk", "mcp")
//	c := sdk.NewClient(transport)
//	defer c.Close()
//
//	_, _ = c.Initialize(ctx)
//	res, _ := c.Recompute(ctx, "p-100")
//	fmt.Println(res.Status, res.DeviationPercent)
package sdk
