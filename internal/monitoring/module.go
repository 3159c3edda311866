package monitoring

import (
	"net/http"

	apphttp "leadgen_backend/internal/http"
	"leadgen_backend/platform/db"
	"leadgen_backend/platform/httpkit"
	"leadgen_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const msgInvalidRequest = "invalid request"

// Module wires the health probes and the monitoring admin surface.
type Module struct {
	svc *Service
}

// NewModule builds the monitoring module on shared infrastructure.
func NewModule(pool *pgxpool.Pool, rdb *redis.Client, q QueueInspector, log *logger.Logger) *Module {
	var dbProbe, redisProbe Pinger
	if pool != nil {
		dbProbe = db.NewPoolAdapter(pool)
	}
	if rdb != nil {
		redisProbe = RedisPinger{RDB: rdb}
	}
	svc := NewService(dbProbe, redisProbe, q, NewRepository(pool), log)
	return &Module{svc: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "monitoring"
}

// RegisterRoutes mounts the health probes at the engine root, outside
// the /api/v1 prefix, and the admin reads under /monitoring.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Engine.GET("/health", m.Health)
	ctx.Engine.GET("/health/live", m.Live)
	ctx.Engine.GET("/health/ready", m.Ready)

	group := ctx.V1.Group("/monitoring")
	group.GET("/queue", m.Queue)
	group.GET("/pipeline", m.Pipeline)
	group.GET("/dead-letters", m.DeadLetters)
	group.POST("/dead-letters/reprocess", m.Reprocess)
}

// Health reports the dependency rollup. The response is always 200; the
// body carries the degraded detail.
func (m *Module) Health(c *gin.Context) {
	c.JSON(http.StatusOK, m.svc.Health(c.Request.Context()))
}

// Live answers as long as the process serves requests.
func (m *Module) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Ready gates load balancer traffic on the critical dependencies.
func (m *Module) Ready(c *gin.Context) {
	report, ready := m.svc.Ready(c.Request.Context())
	if !ready {
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Queue returns the live delivery queue depths.
func (m *Module) Queue(c *gin.Context) {
	stats, err := m.svc.QueueStats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stats)
}

type pipelineQuery struct {
	Hours int `form:"hours"`
}

// Pipeline returns lead counts by status over the requested window.
func (m *Module) Pipeline(c *gin.Context) {
	var q pipelineQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	stats, err := m.svc.PipelineStats(c.Request.Context(), q.Hours)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, stats)
}

type deadLetterQuery struct {
	Limit int `form:"limit"`
}

// DeadLetters lists parked delivery jobs.
func (m *Module) DeadLetters(c *gin.Context) {
	var q deadLetterQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	entries, err := m.svc.DeadLetters(c.Request.Context(), q.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"deadLetters": entries, "count": len(entries)})
}

type reprocessQuery struct {
	Max int `form:"max"`
}

// Reprocess requeues up to max dead jobs with a fresh attempt budget.
func (m *Module) Reprocess(c *gin.Context) {
	var q reprocessQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	result, err := m.svc.Reprocess(c.Request.Context(), q.Max)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

var _ apphttp.Module = (*Module)(nil)
