package leads

import (
	apphttp "leadgen_backend/internal/http"
	"leadgen_backend/internal/leads/handler"
	"leadgen_backend/internal/leads/repository"
	"leadgen_backend/internal/leads/service"
	"leadgen_backend/platform/validator"
)

// Module is the lead intake and admin module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates the leads module around a wired pipeline.
func NewModule(pipeline *Pipeline, repo *repository.Repository, val *validator.Validator) *Module {
	return &Module{handler: handler.New(pipeline, service.New(repo), val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts the public ingest surface and the admin reads.
// The ingest group carries its own limiter on top of the global one.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ingest := ctx.V1.Group("/ingest")
	if ctx.IngestLimiter != nil {
		ingest.Use(ctx.IngestLimiter)
	}
	m.handler.RegisterIngestRoutes(ingest)
	m.handler.RegisterAdminRoutes(ctx.V1.Group("/leads"))
}

var _ apphttp.Module = (*Module)(nil)
