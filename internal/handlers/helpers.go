package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"classdeck-backend/internal/mdm"
	"classdeck-backend/internal/middleware"
	"classdeck-backend/internal/models"
	"classdeck-backend/internal/services"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("session_length", func(fl validator.FieldLevel) bool {
		return models.ValidSessionLength(int(fl.Field().Int()))
	})
	return v
}

// decodeAndValidate writes the error response itself and reports whether the
// handler may continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[fe.Namespace()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Request failed validation", fields, r))
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return errorRespWithFields(code, message, nil, r)
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	requestID := middleware.GetRequestID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get("X-Request-ID")
	}
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: requestID,
		},
	}
}

// handleServiceError maps domain errors onto status codes.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *mdm.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", err.Error(), r))
	case errors.Is(err, models.ErrUnknownDay),
		errors.Is(err, models.ErrUnknownTimeslot),
		errors.Is(err, models.ErrUnsupervisedSlot),
		errors.Is(err, models.ErrInvalidSessionLength),
		errors.Is(err, services.ErrMissingStudent),
		errors.Is(err, services.ErrNothingSelected):
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
	case errors.Is(err, services.ErrProfileNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", err.Error(), r))
	case errors.Is(err, services.ErrProfileExists):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", err.Error(), r))
	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, errorResp("UPSTREAM_ERROR", err.Error(), r))
	default:
		log.Printf("request %s failed: %v", r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Internal server error", r))
	}
}

// screenFrom reads ?screen=, defaulting to the dashboard.
func screenFrom(w http.ResponseWriter, r *http.Request) (services.Screen, bool) {
	screen, ok := services.ParseScreen(r.URL.Query().Get("screen"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Unknown screen", r))
		return "", false
	}
	return screen, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
