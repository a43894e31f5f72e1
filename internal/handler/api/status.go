package api

import (
	"github.com/labstack/echo/v4"

	"SignalForge/internal/dispatch"
	"SignalForge/internal/domain/models"
	"SignalForge/internal/engine"
	"SignalForge/internal/usecase"
	xhttp "SignalForge/pkg/http"
	xlogger "SignalForge/pkg/logger"
)

// StatusHandler exposes the operational surface: health, queue and
// breaker state, recent logs, on-demand computation and test dispatch.
type StatusHandler struct {
	logger     *xlogger.Logger
	engine     *engine.Engine
	states     *engine.StateStore
	dispatcher *dispatch.Dispatcher
	collector  *xlogger.Collector
	producer   *usecase.SignalProducer
}

func NewStatusHandler(
	logger *xlogger.Logger,
	eng *engine.Engine,
	states *engine.StateStore,
	d *dispatch.Dispatcher,
	collector *xlogger.Collector,
	producer *usecase.SignalProducer,
) *StatusHandler {
	return &StatusHandler{
		logger:     logger,
		engine:     eng,
		states:     states,
		dispatcher: d,
		collector:  collector,
		producer:   producer,
	}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api/v1")
	g.GET("/status", h.Status)
	g.GET("/logs/recent", h.RecentLogs)
	g.GET("/signals/compute", h.Compute)
	g.POST("/dispatch/test", h.TestDispatch)
	g.POST("/state/invalidate", h.Invalidate)
	g.POST("/cycle/run", h.RunCycle)
}

func (h *StatusHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// StatusResponse summarizes dispatcher health for operators.
type StatusResponse struct {
	Channels    []string          `json:"channels"`
	QueueDepths map[string]int    `json:"queue_depths"`
	Breakers    map[string]string `json:"breakers"`
}

func (h *StatusHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, &StatusResponse{
		Channels:    h.dispatcher.Channels(),
		QueueDepths: h.dispatcher.QueueDepths(),
		Breakers:    h.dispatcher.BreakerStates(),
	})
}

// RecentLogsRequest filters the in-memory log buffer.
type RecentLogsRequest struct {
	N int `query:"n" default:"50" validate:"gte=1,lte=200"`
}

func (h *StatusHandler) RecentLogs(c echo.Context) error {
	req := &RecentLogsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.collector == nil {
		return xhttp.SuccessResponse(c, []xlogger.Entry{})
	}
	return xhttp.SuccessResponse(c, h.collector.Recent(req.N))
}

// ComputeRequest triggers one computation cycle for a single pair.
type ComputeRequest struct {
	Pair string `query:"pair" validate:"required"`
	TF   string `query:"tf" default:"1m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
}

func (h *StatusHandler) Compute(c echo.Context) error {
	req := &ComputeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.engine.Process(c.Request().Context(), req.Pair, models.Timeframe(req.TF))
	if err != nil {
		h.logger.Error("on-demand compute failed",
			xlogger.String("pair", req.Pair),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("computation failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// TestDispatchRequest publishes a synthetic signal for channel testing.
type TestDispatchRequest struct {
	Pair     string  `json:"pair" validate:"required"`
	TF       string  `json:"tf" default:"1m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
	Priority string  `json:"priority" default:"normal" validate:"oneof=low normal high urgent"`
	Value    float64 `json:"value" default:"0"`
}

func (h *StatusHandler) TestDispatch(c echo.Context) error {
	req := &TestDispatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sig := models.NewSignal(req.Pair, models.Timeframe(req.TF),
		map[string]float64{"test": req.Value}, parsePriority(req.Priority))
	accepted, rejected := h.dispatcher.Publish(sig)
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"signal_id": sig.ID,
		"accepted":  accepted,
		"rejected":  rejected,
	})
}

// InvalidateRequest drops cached computation state for one pair.
type InvalidateRequest struct {
	Pair string `json:"pair" validate:"required"`
	TF   string `json:"tf" default:"1m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
}

func (h *StatusHandler) Invalidate(c echo.Context) error {
	req := &InvalidateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.states.Drop(c.Request().Context(), req.Pair, models.Timeframe(req.TF), h.engine.Periods()); err != nil {
		h.logger.Error("state invalidation failed",
			xlogger.String("pair", req.Pair),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("invalidation failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"pair": req.Pair, "tf": req.TF})
}

// RunCycle kicks off one full computation cycle over the configured
// universe, outside the regular ticker schedule.
func (h *StatusHandler) RunCycle(c echo.Context) error {
	h.producer.RunCycle(c.Request().Context())
	return xhttp.AcceptedResponse(c, map[string]string{"status": "cycle completed"})
}

func parsePriority(s string) models.Priority {
	switch s {
	case "urgent":
		return models.PriorityUrgent
	case "high":
		return models.PriorityHigh
	case "low":
		return models.PriorityLow
	default:
		return models.PriorityNormal
	}
}
