/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

WIRE FORMAT:
  - Instants: ISO-8601 with the business offset, e.g. 2024-03-04T08:00:00+09:00
  - Dates: YYYY-MM-DD
  - Durations: integer minutes; *_hours fields are decimal strings for display

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  h.decode(), which decodes and validates in one step.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/breakrules.go: RuleSetJSON type
*/
package api

import (
	"time"

	"github.com/warp/worktime-engine/worktime"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// PunchRequest is the body of clock-in and clock-out. Missing at means now.
type PunchRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	At     string `json:"at,omitempty" validate:"omitempty,instant"`
	Device string `json:"device,omitempty" validate:"max=64"`
}

// EditAttendanceRequest corrects one or both timestamps.
type EditAttendanceRequest struct {
	ClockIn  *string `json:"clock_in,omitempty" validate:"omitempty,instant"`
	ClockOut *string `json:"clock_out,omitempty" validate:"omitempty,instant"`
	EditorID string  `json:"editor_id" validate:"required,max=128"`
}

// CorrectionRequest corrects a single named field.
type CorrectionRequest struct {
	Field    string `json:"field" validate:"required,oneof=clockIn clockOut"`
	Value    string `json:"value" validate:"required,instant"`
	EditorID string `json:"editor_id" validate:"required,max=128"`
}

// AutoCloseRequest triggers auto-close. Missing cutoff means now.
type AutoCloseRequest struct {
	Cutoff string `json:"cutoff,omitempty" validate:"omitempty,instant"`
}

// WorkRecordRequest ingests a task-level work record from the shop floor.
type WorkRecordRequest struct {
	ID        string `json:"id,omitempty" validate:"max=128"`
	UserID    string `json:"user_id" validate:"required,max=128"`
	VehicleID string `json:"vehicle_id" validate:"max=128"`
	ProcessID string `json:"process_id" validate:"max=128"`
	StartTime string `json:"start_time" validate:"required,instant"`
	EndTime   string `json:"end_time,omitempty" validate:"omitempty,instant"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type AttendanceDTO struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	Date           string  `json:"date"`
	Status         string  `json:"status"`
	ClockIn        string  `json:"clock_in"`
	ClockOut       *string `json:"clock_out"`
	WorkMinutes    int     `json:"work_minutes"`
	WorkHours      string  `json:"work_hours"`
	ClockInDevice  string  `json:"clock_in_device,omitempty"`
	ClockOutDevice string  `json:"clock_out_device,omitempty"`
	AutoClosed     bool    `json:"auto_closed"`
	Version        int64   `json:"version"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type AuditEntryDTO struct {
	ID           string  `json:"id"`
	AttendanceID string  `json:"attendance_id"`
	Field        string  `json:"field"`
	OldValue     *string `json:"old_value"`
	NewValue     string  `json:"new_value"`
	EditorID     string  `json:"editor_id"`
	CreatedAt    string  `json:"created_at"`
}

type WorkRecordDTO struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	VehicleID       string  `json:"vehicle_id"`
	ProcessID       string  `json:"process_id"`
	StartTime       string  `json:"start_time"`
	EndTime         *string `json:"end_time"`
	InProgress      bool    `json:"in_progress"`
	DurationMinutes int     `json:"duration_minutes"`
}

type ReconciliationDTO struct {
	UserID            string `json:"user_id"`
	Date              string `json:"date"`
	AttendanceID      string `json:"attendance_id,omitempty"`
	AttendanceOpen    bool   `json:"attendance_open"`
	AttendanceMinutes int    `json:"attendance_minutes"`
	WorkMinutes       int    `json:"work_minutes"`
	DifferenceMinutes int    `json:"difference_minutes"`
	AttendanceHours   string `json:"attendance_hours"`
	WorkHours         string `json:"work_hours"`
	DifferenceHours   string `json:"difference_hours"`
	WorkRecordCount   int    `json:"work_record_count"`
	Classification    string `json:"classification"`
}

type DiscrepancyReportDTO struct {
	Date             string              `json:"date"`
	ExcessiveMinutes int                 `json:"excessive_threshold_minutes"`
	LowMinutes       int                 `json:"low_threshold_minutes"`
	Discrepancies    []ReconciliationDTO `json:"discrepancies"`
}

type RecordErrorDTO struct {
	AttendanceID string `json:"attendance_id"`
	Code         string `json:"code"`
	Cause        string `json:"cause,omitempty"`
	Message      string `json:"message"`
}

type AutoCloseResultDTO struct {
	Cutoff       string           `json:"cutoff"`
	Due          int              `json:"due"`
	Closed       int              `json:"closed"`
	Skipped      int              `json:"skipped"`
	Errors       int              `json:"errors"`
	ErrorDetails []RecordErrorDTO `json:"error_details"`
}

type RecalcResultDTO struct {
	RunID          string           `json:"run_id"`
	RuleSetVersion int64            `json:"rule_set_version"`
	Total          int              `json:"total"`
	Updated        int              `json:"updated"`
	Errors         int              `json:"errors"`
	ErrorDetails   []RecordErrorDTO `json:"error_details"`
	Interrupted    bool             `json:"interrupted"`
}

type RecalculationRunDTO struct {
	ID             string           `json:"id"`
	RuleSetVersion int64            `json:"rule_set_version"`
	Status         string           `json:"status"`
	Total          int              `json:"total"`
	Updated        int              `json:"updated"`
	Errors         int              `json:"errors"`
	ErrorDetails   []RecordErrorDTO `json:"error_details"`
	StartedAt      string           `json:"started_at"`
	CompletedAt    *string          `json:"completed_at"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatInstant(t time.Time) string {
	return t.In(worktime.BusinessLocation).Format(time.RFC3339)
}

func formatInstantPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatInstant(*t)
	return &s
}

func toAttendanceDTO(rec worktime.AttendanceRecord) AttendanceDTO {
	return AttendanceDTO{
		ID:             rec.ID,
		UserID:         rec.UserID,
		Date:           rec.Date.String(),
		Status:         string(rec.Status()),
		ClockIn:        formatInstant(rec.ClockIn),
		ClockOut:       formatInstantPtr(rec.ClockOut),
		WorkMinutes:    rec.WorkMinutes,
		WorkHours:      worktime.MinutesToHours(rec.WorkMinutes).StringFixed(2),
		ClockInDevice:  rec.ClockInDevice,
		ClockOutDevice: rec.ClockOutDevice,
		AutoClosed:     rec.AutoClosed,
		Version:        rec.Version,
		CreatedAt:      formatInstant(rec.CreatedAt),
		UpdatedAt:      formatInstant(rec.UpdatedAt),
	}
}

func toAuditDTOs(entries []worktime.AuditLogEntry) []AuditEntryDTO {
	out := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryDTO{
			ID:           e.ID,
			AttendanceID: e.AttendanceID,
			Field:        string(e.Field),
			OldValue:     formatInstantPtr(e.OldValue),
			NewValue:     formatInstant(e.NewValue),
			EditorID:     e.EditorID,
			CreatedAt:    formatInstant(e.CreatedAt),
		}
	}
	return out
}

func toWorkRecordDTO(w worktime.WorkRecord, now time.Time) WorkRecordDTO {
	return WorkRecordDTO{
		ID:              w.ID,
		UserID:          w.UserID,
		VehicleID:       w.VehicleID,
		ProcessID:       w.ProcessID,
		StartTime:       formatInstant(w.StartTime),
		EndTime:         formatInstantPtr(w.EndTime),
		InProgress:      w.InProgress(),
		DurationMinutes: w.DurationMinutes(now),
	}
}

func toReconciliationDTO(r worktime.ReconciliationResult) ReconciliationDTO {
	return ReconciliationDTO{
		UserID:            r.UserID,
		Date:              r.Date.String(),
		AttendanceID:      r.AttendanceID,
		AttendanceOpen:    r.AttendanceOpen,
		AttendanceMinutes: r.AttendanceMinutes,
		WorkMinutes:       r.WorkMinutes,
		DifferenceMinutes: r.DifferenceMinutes,
		AttendanceHours:   r.AttendanceHours().StringFixed(2),
		WorkHours:         r.WorkHours().StringFixed(2),
		DifferenceHours:   r.DifferenceHours().StringFixed(2),
		WorkRecordCount:   r.WorkRecordCount,
		Classification:    string(r.Classification),
	}
}

func toRecordErrorDTOs(errs []worktime.RecordError) []RecordErrorDTO {
	out := make([]RecordErrorDTO, len(errs))
	for i, e := range errs {
		out[i] = RecordErrorDTO{
			AttendanceID: e.AttendanceID,
			Code:         string(e.Kind),
			Cause:        string(e.Cause),
			Message:      e.Message,
		}
	}
	return out
}

func toAutoCloseDTO(r worktime.AutoCloseResult) AutoCloseResultDTO {
	return AutoCloseResultDTO{
		Cutoff:       formatInstant(r.Cutoff),
		Due:          r.Due,
		Closed:       r.Closed,
		Skipped:      r.Skipped,
		Errors:       r.Errors,
		ErrorDetails: toRecordErrorDTOs(r.ErrorDetails),
	}
}

func toRecalcDTO(r worktime.RecalcResult) RecalcResultDTO {
	return RecalcResultDTO{
		RunID:          r.RunID,
		RuleSetVersion: r.RuleSetVersion,
		Total:          r.Total,
		Updated:        r.Updated,
		Errors:         r.Errors,
		ErrorDetails:   toRecordErrorDTOs(r.ErrorDetails),
		Interrupted:    r.Interrupted,
	}
}

func toRunDTO(r worktime.RecalculationRun) RecalculationRunDTO {
	return RecalculationRunDTO{
		ID:             r.ID,
		RuleSetVersion: r.RuleSetVersion,
		Status:         string(r.Status),
		Total:          r.Total,
		Updated:        r.Updated,
		Errors:         r.Errors,
		ErrorDetails:   toRecordErrorDTOs(r.ErrorDetails),
		StartedAt:      formatInstant(r.StartedAt),
		CompletedAt:    formatInstantPtr(r.CompletedAt),
	}
}
