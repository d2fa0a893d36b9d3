package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/worktime-engine/worktime"
)

// =============================================================================
// VALIDATION
// =============================================================================

func newValidator() *validator.Validate {
	v := validator.New()

	// Report JSON names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// instant: a timestamp worktime.ParseInstant accepts.
	_ = v.RegisterValidation("instant", func(fl validator.FieldLevel) bool {
		_, err := worktime.ParseInstant(fl.Field().String())
		return err == nil
	})
	return v
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the 400 response itself and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, worktime.KindInvalidInput, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, worktime.KindInvalidInput, "Invalid request", err)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    string(worktime.KindInvalidInput),
			Message: "Validation failed",
			Fields:  fields,
		})
		return false
	}
	return true
}

// =============================================================================
// RESPONSES
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, kind worktime.Kind, message string, err error) {
	if err != nil {
		message = fmt.Sprintf("%s: %v", message, err)
	}
	writeJSON(w, status, ErrorResponse{Code: string(kind), Message: message})
}

// statusFor maps an engine error kind to its HTTP status.
func statusFor(kind worktime.Kind) int {
	switch kind {
	case worktime.KindAlreadyOpen, worktime.KindDuplicateDay, worktime.KindNoOpenRecord,
		worktime.KindConcurrentModification, worktime.KindCutoffNotReached:
		return http.StatusConflict
	case worktime.KindNotFound:
		return http.StatusNotFound
	case worktime.KindInvalidOrder:
		return http.StatusUnprocessableEntity
	case worktime.KindInvalidInput, worktime.KindInvalidField, worktime.KindInvalidBreakRule:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeEngineError writes an engine error with its kind as the code.
// Internal errors are logged and their text is not sent to the client.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := worktime.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, status, ErrorResponse{Code: string(worktime.KindInternal), Message: "Internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Code: string(kind), Message: err.Error()})
}
