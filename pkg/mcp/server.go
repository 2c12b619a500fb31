// Package mcp lets other programs embed the kalk MCP server.
package mcp

import infra "github.com/felixgeelhaar/kalk/internal/infrastructure/mcp"

// Server exposes the MCP server implementation from the infrastructure layer.
type Server = infra.Server

// NewServer constructs an MCP server for the kalk workspace at root.
func NewServer(root string) (*Server, error) {
	return infra.NewServer(root)
}
