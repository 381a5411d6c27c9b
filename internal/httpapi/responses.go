package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"bakerypos/backend/internal/domain"
)

type errorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

type errorMetadata struct {
	status int
	code   string
	// public replaces the error text, used where internals must not leak.
	public string
}

var errorTable = []struct {
	kind error
	meta errorMetadata
}{
	{domain.ErrValidation, errorMetadata{status: http.StatusBadRequest, code: "validation"}},
	{domain.ErrNotFound, errorMetadata{status: http.StatusNotFound, code: "not_found"}},
	{domain.ErrInsufficientStock, errorMetadata{status: http.StatusConflict, code: "insufficient_stock"}},
	{domain.ErrInsufficientData, errorMetadata{status: http.StatusUnprocessableEntity, code: "insufficient_data"}},
	{domain.ErrUnauthorized, errorMetadata{status: http.StatusUnauthorized, code: "unauthorized", public: "invalid credentials"}},
	{domain.ErrPersistence, errorMetadata{status: http.StatusServiceUnavailable, code: "persistence", public: "storage unavailable"}},
}

var internalError = errorMetadata{status: http.StatusInternalServerError, code: "internal", public: "internal server error"}

func metadataFor(err error) errorMetadata {
	for _, entry := range errorTable {
		if errors.Is(err, entry.kind) {
			return entry.meta
		}
	}
	return internalError
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	meta := metadataFor(err)
	body := errorBody{Code: meta.code, Error: err.Error()}
	if meta.public != "" {
		body.Error = meta.public
	}

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		body.Details = stockErr.Shortfalls
	}
	var validationErrs validationDetails
	if errors.As(err, &validationErrs) {
		body.Details = validationErrs.fields
	}

	if meta.status >= 500 {
		a.log.Error(r.Context(), "request failed", err)
	}
	writeJSON(w, meta.status, body)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// validationDetails carries per-field messages from struct validation.
type validationDetails struct {
	fields map[string]string
}

func (v validationDetails) Error() string {
	parts := make([]string, 0, len(v.fields))
	for field, msg := range v.fields {
		parts = append(parts, field+" "+msg)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (v validationDetails) Is(target error) bool { return target == domain.ErrValidation }

func decodeAndValidate(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return domain.NewValidationError("body", "invalid request body: "+err.Error())
	}
	if err := validate.Struct(dest); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := validationDetails{fields: make(map[string]string, len(fieldErrs))}
			for _, fe := range fieldErrs {
				details.fields[fe.Field()] = validationMessage(fe)
			}
			return details
		}
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	}
	return "is invalid"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
