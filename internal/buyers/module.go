// Package buyers provides the buyer administration module: the accounts
// the router assigns leads to, their offer enrollments, coverage areas,
// and exclusivity grants.
package buyers

import (
	"leadgen_backend/internal/buyers/handler"
	"leadgen_backend/internal/buyers/repository"
	"leadgen_backend/internal/buyers/service"
	apphttp "leadgen_backend/internal/http"
	"leadgen_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the buyers bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates and initializes the buyers module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo)
	h := handler.New(svc, val)

	return &Module{handler: h}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "buyers"
}

// RegisterRoutes mounts buyer admin routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/buyers"))
}

var _ apphttp.Module = (*Module)(nil)
