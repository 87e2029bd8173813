package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"shiptrack/internal/tracking/models"
	"shiptrack/internal/tracking/orchestrator"
	"shiptrack/internal/tracking/reconcile"
	"shiptrack/internal/tracking/service"
	dErrors "shiptrack/pkg/domain-errors"
	"shiptrack/pkg/platform/httputil"
	"shiptrack/pkg/platform/middleware/admin"
	request "shiptrack/pkg/platform/middleware/request"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service is the tracking engine as seen by HTTP.
type Service interface {
	Enroll(ctx context.Context, reqs []models.EnrollRequest) (int, error)
	GetStatus(ctx context.Context, orderID string) (*models.OrderTrackingRecord, error)
	ApplyWebhook(ctx context.Context, ev reconcile.WebhookEvent) (reconcile.Result, error)
	RunCycle(ctx context.Context) (orchestrator.CycleReport, error)
	Lookup(ctx context.Context, carrier, trackingNumber string) (*service.LookupResult, error)
}

// Handler serves webhook ingestion, status queries and operator routes.
type Handler struct {
	svc        Service
	logger     *slog.Logger
	adminToken string
}

func New(svc Service, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{svc: svc, logger: logger, adminToken: adminToken}
}

// Register registers the tracking routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/webhook/shiprocket", h.handleShiprocketWebhook)
	r.Get("/orders/{orderID}/tracking", h.handleGetStatus)
	r.Get("/tracking/{carrier}/{trackingNumber}", h.handleLookup)

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		r.Post("/tracking/enroll", h.handleEnroll)
		r.Post("/tracking/cycle", h.handleRunCycle)
	})
}

// shiprocketWebhookRequest is the subset of Shiprocket's push payload we use.
type shiprocketWebhookRequest struct {
	AWB              string `json:"awb"`
	CurrentStatus    string `json:"current_status"`
	OrderID          string `json:"order_id"`
	CurrentTimestamp string `json:"current_timestamp"`
}

type webhookResponse struct {
	Status  string        `json:"status"`
	Outcome string        `json:"outcome"`
	Current models.Status `json:"tracking_status,omitempty"`
}

func (h *Handler) handleShiprocketWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[shiprocketWebhookRequest](w, r, h.logger)
	if !ok {
		return
	}

	ev := reconcile.WebhookEvent{
		OrderID:   strings.TrimSpace(req.OrderID),
		Carrier:   models.CarrierShiprocket,
		RawStatus: req.CurrentStatus,
		AWB:       strings.TrimSpace(req.AWB),
	}
	if t, ok := models.ParseEventTime(req.CurrentTimestamp); ok {
		ev.EventTime = t
	} else if req.CurrentTimestamp != "" {
		h.logger.WarnContext(ctx, "unparseable webhook timestamp, using arrival time",
			"request_id", request.GetRequestID(r),
			"timestamp", req.CurrentTimestamp,
		)
	}

	res, err := h.svc.ApplyWebhook(ctx, ev)
	if err != nil {
		h.logger.WarnContext(ctx, "shiprocket webhook rejected",
			"request_id", request.GetRequestID(r),
			"order_id", ev.OrderID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := webhookResponse{Status: "success", Outcome: string(res.Outcome)}
	if res.Outcome == reconcile.OutcomeStale {
		resp.Status = "discarded"
	}
	if res.Record != nil {
		resp.Current = res.Record.Status
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.GetStatus(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Lookup(r.Context(), chi.URLParam(r, "carrier"), chi.URLParam(r, "trackingNumber"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type enrollRequest struct {
	Orders []models.EnrollRequest `json:"orders"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeJSON[enrollRequest](w, r, h.logger)
	if !ok {
		return
	}
	n, err := h.svc.Enroll(ctx, req.Orders)
	if err != nil {
		h.logger.WarnContext(ctx, "enrollment rejected",
			"request_id", request.GetRequestID(r),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]int{"enrolled": n})
}

func (h *Handler) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.svc.RunCycle(ctx)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			h.logger.ErrorContext(ctx, "manual tracking cycle failed",
				"request_id", request.GetRequestID(r),
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
