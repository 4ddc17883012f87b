/*
handlers.go - HTTP API handlers for the earnings engine

PURPOSE:
  Exposes the earnings and reconciliation engine via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Rule sets:
    GET    /api/rulesets               List versions (paged)
    POST   /api/rulesets               Create rule set (new version)
    GET    /api/rulesets/active        Currently active rule set
    GET    /api/rulesets/{id}          Get one version
    PUT    /api/rulesets/{id}          Derive a new version from {id}
    POST   /api/rulesets/{id}/activate Make {id} the active version
    DELETE /api/rulesets/{id}          Delete a retired version

  Split:
    POST   /api/split                  What-if split computation

  Deliveries:
    GET    /api/deliveries/{id}           Get delivery with earnings
    POST   /api/deliveries/{id}/delivered Delivered-event hook
    POST   /api/deliveries/{id}/earnings  Ensure earnings exist

  Drivers:
    GET    /api/drivers                   List drivers with totals
    GET    /api/drivers/{id}              Get driver
    GET    /api/drivers/{id}/deliveries   Driver's delivery history
    POST   /api/drivers/{id}/validate     Validate totals
    POST   /api/drivers/{id}/fix          Validate and repair totals

  Admin:
    POST   /api/admin/recalculate         Bulk earnings recalculation
    POST   /api/admin/validate-all        Sweep: validate every driver
    POST   /api/admin/fix-all             Sweep: repair every driver
    GET    /api/admin/drift-report.xlsx   Spreadsheet of all driver checks
    GET    /api/admin/sweeps              Sweep history
    GET    /api/admin/sweeps.xlsx         Sweep history as spreadsheet

  Audit:
    GET    /api/audit                  Query the anomaly trail

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access (all five ports behind one interface)
  - Config: Rule-set lifecycle service
  - Engine: Reconciliation engine

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, wrong delivery state
  - 404: Resource not found
  - 409: Conflict (deleting the active rule set)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Put this behind the platform gateway in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Periodic sweep driver
*/
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/export"
	"github.com/warp/earnings-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store bundles every persistence port the API needs. Both the SQLite and
// the PostgreSQL store satisfy it.
type Store interface {
	earnings.RuleSetStore
	earnings.DeliveryStore
	earnings.DriverStore
	earnings.AuditLog
	earnings.SweepRunStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Store
	Config  *earnings.ConfigService
	Engine  *earnings.Reconciler
	Factory *factory.RuleSetFactory
	Log     *slog.Logger
}

// NewHandler creates a new handler with the given store. A nil logger
// falls back to slog.Default().
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	config := earnings.NewConfigService(store)
	return &Handler{
		Store:   store,
		Config:  config,
		Engine:  earnings.NewReconciler(store, store, config, store, logger),
		Factory: factory.NewRuleSetFactory(),
		Log:     logger,
	}
}

// =============================================================================
// RULE SET HANDLERS
// =============================================================================

// ListRuleSets returns one page of rule-set versions, newest first.
func (h *Handler) ListRuleSets(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	sets, total, err := h.Config.List(r.Context(), page, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rule sets", err)
		return
	}

	resp := RuleSetListResponse{
		RuleSets: make([]RuleSetDTO, len(sets)),
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}
	for i, rs := range sets {
		resp.RuleSets[i] = toRuleSetDTO(rs, h.Factory)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateRuleSet validates and stores a new, inactive rule-set version.
func (h *Handler) CreateRuleSet(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rules := h.Factory.FromJSON(req.Rules)
	rs, err := h.Config.Create(r.Context(), rules, req.Notes, req.Author)
	if err != nil {
		writeError(w, statusFor(err), "Failed to create rule set", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRuleSetDTO(*rs, h.Factory))
}

// GetActiveRuleSet returns the live configuration. Never 404s: an empty
// store resolves to the built-in default split.
func (h *Handler) GetActiveRuleSet(w http.ResponseWriter, r *http.Request) {
	rs, err := h.Config.Active(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get active rule set", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleSetDTO(*rs, h.Factory))
}

// GetRuleSet returns a single rule-set version.
func (h *Handler) GetRuleSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rs, err := h.Config.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get rule set", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleSetDTO(*rs, h.Factory))
}

// UpdateRuleSet derives a new version from an existing rule set. The
// source version stays untouched; history is never rewritten.
func (h *Handler) UpdateRuleSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CreateRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rules := h.Factory.FromJSON(req.Rules)
	rs, err := h.Config.Update(r.Context(), id, rules, req.Notes, req.Author)
	if err != nil {
		writeError(w, statusFor(err), "Failed to update rule set", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRuleSetDTO(*rs, h.Factory))
}

// ActivateRuleSet makes one version live and everything else inactive.
func (h *Handler) ActivateRuleSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ActivateRuleSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Config.Activate(r.Context(), id, req.Author); err != nil {
		writeError(w, statusFor(err), "Failed to activate rule set", err)
		return
	}

	rs, err := h.Config.Get(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to load activated rule set", err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleSetDTO(*rs, h.Factory))
}

// DeleteRuleSet removes a retired version. The active one is refused.
func (h *Handler) DeleteRuleSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Config.Delete(r.Context(), id); err != nil {
		writeError(w, statusFor(err), "Failed to delete rule set", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}

// =============================================================================
// SPLIT HANDLER
// =============================================================================

// ComputeSplit answers what-if questions without touching any delivery.
func (h *Handler) ComputeSplit(w http.ResponseWriter, r *http.Request) {
	var req SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	split, rs, err := h.Engine.ComputeSplit(r.Context(), earnings.NewMoney(req.Fee), req.RuleSetID)
	if err != nil {
		writeError(w, statusFor(err), "Failed to compute split", err)
		return
	}

	writeJSON(w, http.StatusOK, SplitDTO{
		Fee:            req.Fee,
		DriverEarning:  split.Driver.MinorUnits(),
		CompanyEarning: split.Company.MinorUnits(),
		RuleIndex:      split.RuleIndex,
		TierIndex:      split.TierIndex,
		Fallback:       split.Fallback,
		RuleSetID:      rs.ID,
		RuleSetVersion: rs.Version,
	})
}

// =============================================================================
// DELIVERY HANDLERS
// =============================================================================

// GetDelivery returns a single delivery with its earnings, if computed.
func (h *Handler) GetDelivery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := h.Store.GetDelivery(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get delivery", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "Delivery not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTO(*d))
}

// DeliveryDelivered is the delivered-event hook. It always acknowledges:
// the engine logs its own failures and the next sweep converges anything
// left behind, so the caller's status change is never blocked.
func (h *Handler) DeliveryDelivered(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.Engine.OnDeliveryDelivered(r.Context(), id)

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "delivery_id": id})
}

// EnsureEarnings computes the delivery's earnings if they are missing and
// returns the delivery. Unlike the hook, this is an administrative call
// and reports its errors.
func (h *Handler) EnsureEarnings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Engine.EnsureDeliveryEarnings(r.Context(), id); err != nil {
		writeError(w, statusFor(err), "Failed to ensure earnings", err)
		return
	}

	d, err := h.Store.GetDelivery(r.Context(), id)
	if err != nil || d == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload delivery", err)
		return
	}
	writeJSON(w, http.StatusOK, toDeliveryDTO(*d))
}

// =============================================================================
// DRIVER HANDLERS
// =============================================================================

// ListDrivers returns all drivers with their cached totals.
func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.Store.ListDrivers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list drivers", err)
		return
	}

	dtos := make([]DriverDTO, len(drivers))
	for i, d := range drivers {
		dtos[i] = toDriverDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetDriver returns a single driver.
func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := h.Store.GetDriver(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get driver", err)
		return
	}
	if d == nil {
		writeError(w, http.StatusNotFound, "Driver not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toDriverDTO(*d))
}

// ListDriverDeliveries returns the driver's full delivery history.
func (h *Handler) ListDriverDeliveries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	driver, err := h.Store.GetDriver(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get driver", err)
		return
	}
	if driver == nil {
		writeError(w, http.StatusNotFound, "Driver not found", nil)
		return
	}

	deliveries, err := h.Store.ListDriverDeliveries(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deliveries", err)
		return
	}

	dtos := make([]DeliveryDTO, len(deliveries))
	for i, d := range deliveries {
		dtos[i] = toDeliveryDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ValidateDriver compares stored totals against the delivery history.
func (h *Handler) ValidateDriver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.Engine.Validate(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to validate driver", err)
		return
	}
	writeJSON(w, http.StatusOK, toValidationReportDTO(report))
}

// FixDriver validates and, if drifted, repairs the stored totals.
func (h *Handler) FixDriver(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	report, err := h.Engine.Fix(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to fix driver", err)
		return
	}
	writeJSON(w, http.StatusOK, toValidationReportDTO(report))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// BulkRecalculate re-derives earnings for a list of deliveries, optionally
// under a historical rule set.
func (h *Handler) BulkRecalculate(w http.ResponseWriter, r *http.Request) {
	var req BulkRecalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.DeliveryIDs) == 0 {
		writeError(w, http.StatusBadRequest, "delivery_ids is required", nil)
		return
	}

	result, err := h.Engine.BulkRecalculate(r.Context(), req.DeliveryIDs, req.RuleSetID)
	if err != nil {
		writeError(w, statusFor(err), "Failed to recalculate", err)
		return
	}
	writeJSON(w, http.StatusOK, toBulkResultDTO(result))
}

// ValidateAll sweeps every driver and reports the drifted ones. The run is
// recorded in the sweep history alongside the scheduler's runs.
func (h *Handler) ValidateAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.ValidateAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	h.recordSweepRun(r, report)
	writeJSON(w, http.StatusOK, toSweepReportDTO(report))
}

// FixAll sweeps every driver and repairs the drifted ones.
func (h *Handler) FixAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.FixAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	h.recordSweepRun(r, report)
	writeJSON(w, http.StatusOK, toSweepReportDTO(report))
}

func (h *Handler) recordSweepRun(r *http.Request, report *earnings.SweepReport) {
	run := report.AsRun(uuid.New().String())
	if err := h.Store.SaveSweepRun(r.Context(), run); err != nil {
		h.Log.Error("save sweep run failed", "mode", string(report.Mode), "error", err)
	}
}

// DriftReport streams a spreadsheet with one row per driver, valid or not,
// so operators get a full census rather than only the failures.
func (h *Handler) DriftReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	drivers, err := h.Store.ListDrivers(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list drivers", err)
		return
	}

	reports := make([]*earnings.ValidationReport, 0, len(drivers))
	for _, d := range drivers {
		report, err := h.Engine.Validate(ctx, d.ID)
		if err != nil {
			h.Log.Error("drift report: driver check failed", "driver_id", d.ID, "error", err)
			continue
		}
		reports = append(reports, report)
	}

	f, err := export.DriftWorkbook(reports)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}
	h.writeWorkbook(w, f, fmt.Sprintf("drift_report_%s.xlsx", time.Now().Format("20060102_150405")))
}

// ListSweepRuns returns the recorded sweep history, newest first.
func (h *Handler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	runs, err := h.Store.ListSweepRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sweep runs", err)
		return
	}

	dtos := make([]SweepRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSweepRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SweepHistoryReport streams the sweep history as a spreadsheet.
func (h *Handler) SweepHistoryReport(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	runs, err := h.Store.ListSweepRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sweep runs", err)
		return
	}

	f, err := export.SweepWorkbook(runs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}
	h.writeWorkbook(w, f, fmt.Sprintf("sweep_history_%s.xlsx", time.Now().Format("20060102_150405")))
}

// =============================================================================
// AUDIT HANDLER
// =============================================================================

// QueryAudit filters the anomaly trail by driver, delivery, action and
// time range.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := earnings.AuditFilter{Limit: queryInt(r, "limit", 0)}

	if v := q.Get("driver_id"); v != "" {
		filter.DriverID = strPtr(v)
	}
	if v := q.Get("delivery_id"); v != "" {
		filter.DeliveryID = strPtr(v)
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, earnings.AuditAction(a))
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from timestamp (use RFC3339)", err)
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to timestamp (use RFC3339)", err)
			return
		}
		filter.To = &t
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain errors onto HTTP statuses. Anything unrecognized
// is a 500.
func statusFor(err error) int {
	switch {
	case earnings.IsNotFound(err):
		return http.StatusNotFound
	case earnings.IsConflict(err):
		return http.StatusConflict
	case earnings.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeWorkbook streams a spreadsheet as a download. Once the headers are
// out a write failure can only be logged, not reported to the client.
func (h *Handler) writeWorkbook(w http.ResponseWriter, f *excelize.File, filename string) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		h.Log.Error("write workbook failed", "filename", filename, "error", err)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func strPtr(s string) *string {
	return &s
}
