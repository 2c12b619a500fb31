package mcp

import (
	"sort"
	"strings"

	mcplib "github.com/felixgeelhaar/mcp-go"
	"github.com/goccy/go-json"
)

// OpenAPIDocument is the subset of OpenAPI 3.0 needed to describe the tools.
type OpenAPIDocument struct {
	OpenAPI string              `json:"openapi"`
	Info    OpenAPIInfo         `json:"info"`
	Tags    []Tag               `json:"tags,omitempty"`
	Paths   map[string]PathItem `json:"paths"`
}

type OpenAPIInfo struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

type Tag struct {
	Name string `json:"name"`
}

type PathItem struct {
	Post *Operation `json:"post,omitempty"`
}

type Operation struct {
	OperationID string              `json:"operationId"`
	Summary     string              `json:"summary,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
}

type RequestBody struct {
	Required bool                 `json:"required"`
	Content  map[string]MediaType `json:"content"`
}

type MediaType struct {
	Schema any `json:"schema"`
}

type Response struct {
	Description string `json:"description"`
}

// toolAreas groups tools by the calculation they work on. Unknown tools
// land in "kalk".
var toolAreas = map[string]string{
	"parameters": "parameters",
	"precalc":    "precalculation",
	"postcalc":   "postcalculation",
	"recompute":  "postcalculation",
	"classify":   "classification",
	"hours":      "hours",
}

func toolArea(name string) string {
	for _, part := range strings.Split(name, "_") {
		if area, ok := toolAreas[part]; ok {
			return area
		}
	}
	return "kalk"
}

// OpenAPI returns the OpenAPI 3.0 JSON document for this server.
func (s *Server) OpenAPI() ([]byte, error) {
	return GenerateOpenAPI(s.mcpServer)
}

// GenerateOpenAPI maps every registered tool to POST /tools/{name}. Tools
// taking a project_id also document the 404 for unknown projects.
func GenerateOpenAPI(srv *mcplib.Server) ([]byte, error) {
	tools := srv.Tools()
	paths := make(map[string]PathItem, len(tools))
	areas := map[string]bool{}

	for _, t := range tools {
		area := toolArea(t.Name)
		areas[area] = true

		op := &Operation{
			OperationID: t.Name,
			Summary:     t.Description,
			Tags:        []string{area},
			Responses: map[string]Response{
				"200": {Description: "Tool result as JSON or a plain-text notice"},
				"400": {Description: "Invalid arguments"},
				"500": {Description: "Workspace or source failure"},
			},
		}
		props := schemaProperties(t.InputSchema)
		if len(props) > 0 {
			op.RequestBody = &RequestBody{
				Required: true,
				Content:  map[string]MediaType{"application/json": {Schema: t.InputSchema}},
			}
		}
		if _, ok := props["project_id"]; ok {
			op.Responses["404"] = Response{Description: "Unknown project"}
		}
		paths["/tools/"+t.Name] = PathItem{Post: op}
	}

	doc := OpenAPIDocument{
		OpenAPI: "3.0.3",
		Info: OpenAPIInfo{
			Title:       "Kalk MCP API",
			Description: "Calculation tools of the kalk MCP server, one POST endpoint per tool.",
			Version:     SchemaVersion,
		},
		Paths: paths,
	}
	for area := range areas {
		doc.Tags = append(doc.Tags, Tag{Name: area})
	}
	sort.Slice(doc.Tags, func(i, j int) bool { return doc.Tags[i].Name < doc.Tags[j].Name })

	return json.MarshalIndent(doc, "", "  ")
}

// schemaProperties reads the properties of a tool input schema. The schema is
// a typed struct in mcp-go, so it is read back through its JSON form.
func schemaProperties(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m.Properties
}
