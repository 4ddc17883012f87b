/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  All monetary values cross the wire as integral minor units (int64).
  Clients format for display; the API never deals in floats.

TYPES:
  Rule sets:
    RuleSetDTO (wraps factory.RuleJSON), CreateRuleSetRequest,
    ActivateRuleSetRequest, RuleSetListResponse

  Split:
    SplitRequest, SplitDTO

  Deliveries / drivers:
    DeliveryDTO, DriverDTO

  Reconciliation:
    TotalsDTO, FieldMismatchDTO, ValidationReportDTO,
    SweepReportDTO, SweepFailureDTO, SweepRunDTO

  Bulk recalculation:
    BulkRecalculateRequest, BulkResultDTO, BulkOutcomeDTO

  Audit:
    AuditEntryDTO

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/ruleset.go: RuleJSON type
*/
package api

import (
	"time"

	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/factory"
)

// =============================================================================
// RULE SET TYPES
// =============================================================================

// RuleSetDTO represents a rule-set version in API responses.
type RuleSetDTO struct {
	ID            string             `json:"id"`
	Version       int                `json:"version"`
	Active        bool               `json:"active"`
	Rules         []factory.RuleJSON `json:"rules"`
	EffectiveFrom string             `json:"effective_from"`
	Notes         string             `json:"notes,omitempty"`
	CreatedBy     string             `json:"created_by,omitempty"`
	UpdatedBy     string             `json:"updated_by,omitempty"`
	CreatedAt     string             `json:"created_at,omitempty"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
}

// CreateRuleSetRequest is the request to create a rule set, and also the
// request to derive a new version from an existing one.
type CreateRuleSetRequest struct {
	Rules  []factory.RuleJSON `json:"rules"`
	Notes  string             `json:"notes,omitempty"`
	Author string             `json:"author,omitempty"`
}

// ActivateRuleSetRequest names who flipped the switch.
type ActivateRuleSetRequest struct {
	Author string `json:"author,omitempty"`
}

// RuleSetListResponse is one page of rule sets, newest version first.
type RuleSetListResponse struct {
	RuleSets []RuleSetDTO `json:"rule_sets"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// =============================================================================
// SPLIT TYPES
// =============================================================================

// SplitRequest asks how a fee would divide, without touching any delivery.
type SplitRequest struct {
	Fee       int64  `json:"fee"`
	RuleSetID string `json:"rule_set_id,omitempty"` // empty selects the active rule set
}

// SplitDTO is a computed fee division plus the rule that produced it.
type SplitDTO struct {
	Fee            int64  `json:"fee"`
	DriverEarning  int64  `json:"driver_earning"`
	CompanyEarning int64  `json:"company_earning"`
	RuleIndex      int    `json:"rule_index"`
	TierIndex      int    `json:"tier_index"`
	Fallback       bool   `json:"fallback"`
	RuleSetID      string `json:"rule_set_id"`
	RuleSetVersion int    `json:"rule_set_version"`
}

// =============================================================================
// DELIVERY / DRIVER TYPES
// =============================================================================

// DeliveryDTO represents a delivery in API responses.
type DeliveryDTO struct {
	ID             string `json:"id"`
	DriverID       string `json:"driver_id"`
	Fee            int64  `json:"fee"`
	Status         string `json:"status"`
	DriverEarning  *int64 `json:"driver_earning,omitempty"`
	CompanyEarning *int64 `json:"company_earning,omitempty"`
	RuleSetVersion int    `json:"rule_set_version,omitempty"`
	DeliveredAt    string `json:"delivered_at,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// DriverDTO represents a driver with the cached aggregates.
type DriverDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	TotalDeliveries     int    `json:"total_deliveries"`
	CompletedDeliveries int    `json:"completed_deliveries"`
	TotalEarnings       int64  `json:"total_earnings"`
	RepairCount         int    `json:"repair_count"`
	LastRepairAt        string `json:"last_repair_at,omitempty"`
	CreatedAt           string `json:"created_at,omitempty"`
	UpdatedAt           string `json:"updated_at,omitempty"`
}

// =============================================================================
// RECONCILIATION TYPES
// =============================================================================

// TotalsDTO is one set of driver aggregates.
type TotalsDTO struct {
	TotalDeliveries     int   `json:"total_deliveries"`
	CompletedDeliveries int   `json:"completed_deliveries"`
	TotalEarnings       int64 `json:"total_earnings"`
	MissingEarnings     int   `json:"missing_earnings,omitempty"`
}

// FieldMismatchDTO is a single disagreeing aggregate field.
type FieldMismatchDTO struct {
	Field      string `json:"field"`
	Stored     int64  `json:"stored"`
	Recomputed int64  `json:"recomputed"`
}

// ValidationReportDTO compares stored against recomputed totals.
type ValidationReportDTO struct {
	DriverID   string             `json:"driver_id"`
	Valid      bool               `json:"valid"`
	Fixed      bool               `json:"fixed"`
	Stored     TotalsDTO          `json:"stored"`
	Recomputed TotalsDTO          `json:"recomputed"`
	Mismatches []FieldMismatchDTO `json:"mismatches,omitempty"`
	CheckedAt  string             `json:"checked_at"`
}

// SweepFailureDTO names a driver whose check errored during a sweep.
type SweepFailureDTO struct {
	DriverID string `json:"driver_id"`
	Error    string `json:"error"`
}

// SweepReportDTO is the outcome of a validate-all or fix-all pass.
type SweepReportDTO struct {
	Mode           string                `json:"mode"`
	StartedAt      string                `json:"started_at"`
	FinishedAt     string                `json:"finished_at"`
	DriversChecked int                   `json:"drivers_checked"`
	DriversValid   int                   `json:"drivers_valid"`
	DriversFixed   int                   `json:"drivers_fixed"`
	Invalid        []ValidationReportDTO `json:"invalid,omitempty"`
	Failures       []SweepFailureDTO     `json:"failures,omitempty"`
}

// SweepRunDTO is one recorded sweep from the history.
type SweepRunDTO struct {
	ID             string `json:"id"`
	Mode           string `json:"mode"`
	Status         string `json:"status"`
	StartedAt      string `json:"started_at"`
	FinishedAt     string `json:"finished_at,omitempty"`
	DriversChecked int    `json:"drivers_checked"`
	DriversValid   int    `json:"drivers_valid"`
	DriversInvalid int    `json:"drivers_invalid"`
	DriversFixed   int    `json:"drivers_fixed"`
	Failures       int    `json:"failures"`
	Error          string `json:"error,omitempty"`
}

// =============================================================================
// BULK RECALCULATION TYPES
// =============================================================================

// BulkRecalculateRequest re-derives earnings for the named deliveries.
type BulkRecalculateRequest struct {
	DeliveryIDs []string `json:"delivery_ids"`
	RuleSetID   string   `json:"rule_set_id,omitempty"` // empty selects the active rule set
}

// BulkOutcomeDTO is the per-delivery result of a bulk recalculation.
type BulkOutcomeDTO struct {
	DeliveryID     string `json:"delivery_id"`
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
	DriverEarning  int64  `json:"driver_earning,omitempty"`
	CompanyEarning int64  `json:"company_earning,omitempty"`
}

// BulkResultDTO reports a whole bulk recalculation.
type BulkResultDTO struct {
	RuleSetID      string           `json:"rule_set_id"`
	RuleSetVersion int              `json:"rule_set_version"`
	Succeeded      int              `json:"succeeded"`
	Failed         int              `json:"failed"`
	Outcomes       []BulkOutcomeDTO `json:"outcomes"`
}

// =============================================================================
// AUDIT TYPES
// =============================================================================

// AuditEntryDTO is one recorded anomaly or repair.
type AuditEntryDTO struct {
	ID         string         `json:"id"`
	Timestamp  string         `json:"timestamp"`
	ActorID    string         `json:"actor_id"`
	Action     string         `json:"action"`
	DriverID   string         `json:"driver_id,omitempty"`
	DeliveryID string         `json:"delivery_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRuleSetDTO(rs earnings.RuleSet, f *factory.RuleSetFactory) RuleSetDTO {
	return RuleSetDTO{
		ID:            rs.ID,
		Version:       rs.Version,
		Active:        rs.Active,
		Rules:         f.ToJSON(rs.Rules),
		EffectiveFrom: rs.EffectiveFrom.Format(time.RFC3339),
		Notes:         rs.Notes,
		CreatedBy:     rs.CreatedBy,
		UpdatedBy:     rs.UpdatedBy,
		CreatedAt:     rs.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     rs.UpdatedAt.Format(time.RFC3339),
	}
}

func toDeliveryDTO(d earnings.Delivery) DeliveryDTO {
	return DeliveryDTO{
		ID:             d.ID,
		DriverID:       d.DriverID,
		Fee:            d.Fee.MinorUnits(),
		Status:         string(d.Status),
		DriverEarning:  minorPtr(d.DriverEarning),
		CompanyEarning: minorPtr(d.CompanyEarning),
		RuleSetVersion: d.RuleSetVersion,
		DeliveredAt:    fmtTimePtr(d.DeliveredAt),
		CreatedAt:      d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      d.UpdatedAt.Format(time.RFC3339),
	}
}

func toDriverDTO(d earnings.Driver) DriverDTO {
	return DriverDTO{
		ID:                  d.ID,
		Name:                d.Name,
		TotalDeliveries:     d.TotalDeliveries,
		CompletedDeliveries: d.CompletedDeliveries,
		TotalEarnings:       d.TotalEarnings.MinorUnits(),
		RepairCount:         d.RepairCount,
		LastRepairAt:        fmtTimePtr(d.LastRepairAt),
		CreatedAt:           d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           d.UpdatedAt.Format(time.RFC3339),
	}
}

func toTotalsDTO(t earnings.DriverTotals) TotalsDTO {
	return TotalsDTO{
		TotalDeliveries:     t.TotalDeliveries,
		CompletedDeliveries: t.CompletedDeliveries,
		TotalEarnings:       t.TotalEarnings.MinorUnits(),
		MissingEarnings:     t.MissingEarnings,
	}
}

func toValidationReportDTO(r *earnings.ValidationReport) ValidationReportDTO {
	dto := ValidationReportDTO{
		DriverID:   r.DriverID,
		Valid:      r.Valid,
		Fixed:      r.Fixed,
		Stored:     toTotalsDTO(r.Stored),
		Recomputed: toTotalsDTO(r.Recomputed),
		CheckedAt:  r.CheckedAt.Format(time.RFC3339),
	}
	for _, m := range r.Mismatches {
		dto.Mismatches = append(dto.Mismatches, FieldMismatchDTO{
			Field:      m.Field,
			Stored:     m.Stored,
			Recomputed: m.Recomputed,
		})
	}
	return dto
}

func toSweepReportDTO(r *earnings.SweepReport) SweepReportDTO {
	dto := SweepReportDTO{
		Mode:           string(r.Mode),
		StartedAt:      r.StartedAt.Format(time.RFC3339),
		FinishedAt:     r.FinishedAt.Format(time.RFC3339),
		DriversChecked: r.DriversChecked,
		DriversValid:   r.DriversValid,
		DriversFixed:   r.DriversFixed,
	}
	for _, rep := range r.Invalid {
		dto.Invalid = append(dto.Invalid, toValidationReportDTO(rep))
	}
	for _, f := range r.Failures {
		dto.Failures = append(dto.Failures, SweepFailureDTO{DriverID: f.DriverID, Error: f.Err})
	}
	return dto
}

func toSweepRunDTO(run earnings.SweepRun) SweepRunDTO {
	return SweepRunDTO{
		ID:             run.ID,
		Mode:           string(run.Mode),
		Status:         string(run.Status),
		StartedAt:      run.StartedAt.Format(time.RFC3339),
		FinishedAt:     fmtTimePtr(run.FinishedAt),
		DriversChecked: run.DriversChecked,
		DriversValid:   run.DriversValid,
		DriversInvalid: run.DriversInvalid,
		DriversFixed:   run.DriversFixed,
		Failures:       run.Failures,
		Error:          run.Error,
	}
}

func toBulkResultDTO(r *earnings.BulkResult) BulkResultDTO {
	dto := BulkResultDTO{
		RuleSetID:      r.RuleSetID,
		RuleSetVersion: r.RuleSetVersion,
		Succeeded:      r.Succeeded,
		Failed:         r.Failed,
	}
	for _, o := range r.Outcomes {
		out := BulkOutcomeDTO{DeliveryID: o.DeliveryID, OK: o.OK, Error: o.Error}
		if o.OK {
			out.DriverEarning = o.Driver.MinorUnits()
			out.CompanyEarning = o.Company.MinorUnits()
		}
		dto.Outcomes = append(dto.Outcomes, out)
	}
	return dto
}

func toAuditEntryDTO(e earnings.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		Timestamp:  e.Timestamp.Format(time.RFC3339),
		ActorID:    e.ActorID,
		Action:     string(e.Action),
		DriverID:   e.DriverID,
		DeliveryID: e.DeliveryID,
		Payload:    e.Payload,
	}
}

func minorPtr(m *earnings.Money) *int64 {
	if m == nil {
		return nil
	}
	v := m.MinorUnits()
	return &v
}

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
