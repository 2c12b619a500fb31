package plugin

import (
	"net/rpc"

	"github.com/felixgeelhaar/kalk/pkg/domain/calculation"
	"github.com/hashicorp/go-plugin"
)

// Source is the interface that source plugins must implement. A plugin reads
// projects, offers, assignments and time entries from an external ERP store.
type Source interface {
	// Init ensures the plugin can reach its backend (auth check)
	Init(config map[string]string) error

	ListProjects() ([]calculation.Project, error)

	// GetProject returns a nil project when the ID is unknown.
	GetProject(projectID string) (*calculation.Project, error)

	// GetOffer returns a nil offer when the ID is unknown.
	GetOffer(offerID string) (*calculation.Offer, error)

	ListAssignments(projectID string) ([]calculation.EmployeeAssignment, error)

	ListTimeEntries(projectID string) ([]calculation.TimeEntry, error)
}

// SourcePlugin is the implementation of plugin.Plugin so we can serve/consume this.
type SourcePlugin struct {
	Impl Source
}

func (p *SourcePlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &SourceRPCServer{Impl: p.Impl}, nil
}

func (p *SourcePlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &SourceRPCClient{Client: c}, nil
}

// RPC replies. Pointers do not survive gob when nil, so lookups carry a Found flag.

type ProjectReply struct {
	Project calculation.Project
	Found   bool
}

type OfferReply struct {
	Offer calculation.Offer
	Found bool
}

type SourceRPCClient struct{ Client *rpc.Client }

func (g *SourceRPCClient) Init(config map[string]string) error {
	var resp interface{}
	return g.Client.Call("Plugin.Init", config, &resp)
}

func (g *SourceRPCClient) ListProjects() ([]calculation.Project, error) {
	var resp []calculation.Project
	err := g.Client.Call("Plugin.ListProjects", "", &resp)
	return resp, err
}

func (g *SourceRPCClient) GetProject(projectID string) (*calculation.Project, error) {
	var resp ProjectReply
	if err := g.Client.Call("Plugin.GetProject", projectID, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	return &resp.Project, nil
}

func (g *SourceRPCClient) GetOffer(offerID string) (*calculation.Offer, error) {
	var resp OfferReply
	if err := g.Client.Call("Plugin.GetOffer", offerID, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, nil
	}
	return &resp.Offer, nil
}

func (g *SourceRPCClient) ListAssignments(projectID string) ([]calculation.EmployeeAssignment, error) {
	var resp []calculation.EmployeeAssignment
	err := g.Client.Call("Plugin.ListAssignments", projectID, &resp)
	return resp, err
}

func (g *SourceRPCClient) ListTimeEntries(projectID string) ([]calculation.TimeEntry, error) {
	var resp []calculation.TimeEntry
	err := g.Client.Call("Plugin.ListTimeEntries", projectID, &resp)
	return resp, err
}

type SourceRPCServer struct{ Impl Source }

func (s *SourceRPCServer) Init(config map[string]string, resp *interface{}) error {
	return s.Impl.Init(config)
}

func (s *SourceRPCServer) ListProjects(_ string, resp *[]calculation.Project) error {
	projects, err := s.Impl.ListProjects()
	*resp = projects
	return err
}

func (s *SourceRPCServer) GetProject(projectID string, resp *ProjectReply) error {
	p, err := s.Impl.GetProject(projectID)
	if p != nil {
		*resp = ProjectReply{Project: *p, Found: true}
	}
	return err
}

func (s *SourceRPCServer) GetOffer(offerID string, resp *OfferReply) error {
	o, err := s.Impl.GetOffer(offerID)
	if o != nil {
		*resp = OfferReply{Offer: *o, Found: true}
	}
	return err
}

func (s *SourceRPCServer) ListAssignments(projectID string, resp *[]calculation.EmployeeAssignment) error {
	assignments, err := s.Impl.ListAssignments(projectID)
	*resp = assignments
	return err
}

func (s *SourceRPCServer) ListTimeEntries(projectID string, resp *[]calculation.TimeEntry) error {
	entries, err := s.Impl.ListTimeEntries(projectID)
	*resp = entries
	return err
}
