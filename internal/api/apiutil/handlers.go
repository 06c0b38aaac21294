package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtqueue/internal/models"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error       string         `json:"error"`
	Kind        string         `json:"kind,omitempty"`
	PairedCourt models.CourtID `json:"pairedCourt,omitempty"`
	Matches     []string       `json:"matches,omitempty"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// ErrorFor maps an error from the board to a status code and client message.
func ErrorFor(err error) HandlerError {
	var handlerErr HandlerError
	var fieldErr FieldError
	switch {
	case errors.As(err, &handlerErr):
		return handlerErr
	case errors.As(err, &fieldErr):
		return HandlerError{Status: http.StatusBadRequest, Message: fieldErr.Error(), Err: err}
	case errors.Is(err, models.ErrValidation):
		return HandlerError{Status: http.StatusUnprocessableEntity, Message: err.Error(), Err: err}
	case errors.Is(err, models.ErrNotFound):
		return HandlerError{Status: http.StatusNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, models.ErrDuplicateName):
		return HandlerError{Status: http.StatusConflict, Message: err.Error(), Err: err}
	case errors.Is(err, models.ErrStoreUnavailable):
		return HandlerError{Status: http.StatusServiceUnavailable, Message: "Store unavailable", Err: err}
	default:
		return HandlerError{Status: http.StatusInternalServerError, Message: "Internal Server Error", Err: err}
	}
}

// WriteError writes err as an ErrorResponse. Server errors are logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := ErrorFor(err)
	body := ErrorResponse{Error: mapped.Message}

	var validation *models.ValidationError
	if errors.As(err, &validation) {
		if validation.Kind != nil {
			body.Kind = validation.Kind.Error()
		}
		body.PairedCourt = validation.PairedCourt
	}
	var duplicate *models.DuplicateNameError
	if errors.As(err, &duplicate) {
		body.Matches = duplicate.Matches
	}

	logger := log.Ctx(r.Context())
	if mapped.Status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", mapped.Status).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", mapped.Status).Msg("Request rejected")
	}
	if writeErr := WriteJSON(w, mapped.Status, body); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write error response")
	}
}
