package services

import (
	"github.com/fyrsmithlabs/infrad/internal/assembler"
	"github.com/fyrsmithlabs/infrad/internal/cloud"
	"github.com/fyrsmithlabs/infrad/internal/cloudstate"
	"github.com/fyrsmithlabs/infrad/internal/federation"
	"github.com/fyrsmithlabs/infrad/internal/llm"
	"github.com/fyrsmithlabs/infrad/internal/memory"
	"github.com/fyrsmithlabs/infrad/internal/session"
	"github.com/fyrsmithlabs/infrad/internal/vectorstore"
)

// Registry provides access to all infrad services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	VectorStore() vectorstore.Store
	Sessions() *session.Service
	Fetcher() cloud.Fetcher
	Memory() *memory.Manager
	CloudState() *cloudstate.Service
	Federator() *federation.Federator
	Assembler() *assembler.Assembler
	LLM() llm.Client
	Users() *UserAdmin
}

// Options configures the registry with service instances.
type Options struct {
	VectorStore vectorstore.Store
	Sessions    *session.Service
	Fetcher     cloud.Fetcher
	Memory      *memory.Manager
	CloudState  *cloudstate.Service
	Federator   *federation.Federator
	Assembler   *assembler.Assembler
	LLM         llm.Client
	Users       *UserAdmin
}

// registry is the concrete implementation of Registry.
type registry struct {
	vectorStore vectorstore.Store
	sessions    *session.Service
	fetcher     cloud.Fetcher
	memory      *memory.Manager
	cloudState  *cloudstate.Service
	federator   *federation.Federator
	assembler   *assembler.Assembler
	llm         llm.Client
	users       *UserAdmin
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		vectorStore: opts.VectorStore,
		sessions:    opts.Sessions,
		fetcher:     opts.Fetcher,
		memory:      opts.Memory,
		cloudState:  opts.CloudState,
		federator:   opts.Federator,
		assembler:   opts.Assembler,
		llm:         opts.LLM,
		users:       opts.Users,
	}
}

func (r *registry) VectorStore() vectorstore.Store    { return r.vectorStore }
func (r *registry) Sessions() *session.Service        { return r.sessions }
func (r *registry) Fetcher() cloud.Fetcher            { return r.fetcher }
func (r *registry) Memory() *memory.Manager           { return r.memory }
func (r *registry) CloudState() *cloudstate.Service   { return r.cloudState }
func (r *registry) Federator() *federation.Federator  { return r.federator }
func (r *registry) Assembler() *assembler.Assembler   { return r.assembler }
func (r *registry) LLM() llm.Client                   { return r.llm }
func (r *registry) Users() *UserAdmin                 { return r.users }
