package postback

import (
	"io"
	"net/http"
	"strconv"

	"leadgen_backend/internal/events"
	apphttp "leadgen_backend/internal/http"
	"leadgen_backend/platform/httpkit"
	"leadgen_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	msgInvalidRequest = "invalid request"
	msgInvalidBuyerID = "invalid buyer id"

	signatureHeader = "X-Webhook-Signature"
	maxBodyBytes    = 64 << 10
)

// Module is the postback receiver module implementing http.Module.
type Module struct {
	svc *Service
}

// NewModule creates and initializes the postback module.
func NewModule(pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) *Module {
	return &Module{svc: NewService(NewRepository(pool), bus, log)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "postback"
}

// RegisterRoutes mounts the postback route on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/postbacks/:buyer_id", m.Receive)
}

// Receive reads the raw body before any decoding; the signature covers
// the exact bytes on the wire.
func (m *Module) Receive(c *gin.Context) {
	buyerID, err := strconv.ParseInt(c.Param("buyer_id"), 10, 64)
	if err != nil || buyerID < 1 {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidBuyerID, nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	resp, err := m.svc.Record(c.Request.Context(), buyerID, body, c.GetHeader(signatureHeader))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, resp)
}

var _ apphttp.Module = (*Module)(nil)
