package apiutil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codr1/courtqueue/internal/models"
)

func TestErrorFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"field", FieldError{Field: "name", Reason: "is required"}, http.StatusBadRequest},
		{"handler", HandlerError{Status: http.StatusTeapot, Message: "tea"}, http.StatusTeapot},
		{"validation", &models.ValidationError{Kind: models.ErrCourtInTraining}, http.StatusUnprocessableEntity},
		{"wrapped not found", fmt.Errorf("move: %w", &models.NotFoundError{Entity: "player", ID: "p"}), http.StatusNotFound},
		{"duplicate", &models.DuplicateNameError{Name: "Dana"}, http.StatusConflict},
		{"store", &models.StoreUnavailableError{Op: "ping"}, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorFor(tt.err).Status; got != tt.want {
				t.Fatalf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWriteErrorIncludesPairedCourt(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	WriteError(rec, req, &models.ValidationError{
		Kind:        models.ErrInvalidCourt,
		Detail:      "warm-up courts follow their game court",
		PairedCourt: models.G2,
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"pairedCourt":"G2"`) || !strings.Contains(body, `"kind":"invalid court"`) {
		t.Fatalf("body = %s", body)
	}
}

func TestValidate(t *testing.T) {
	type payload struct {
		Name  string   `json:"name" validate:"required,max=5"`
		Items []string `json:"items" validate:"omitempty,dive,required"`
	}
	tests := []struct {
		name      string
		in        payload
		wantField string
	}{
		{"valid", payload{Name: "Dana"}, ""},
		{"missing", payload{}, "name"},
		{"too long", payload{Name: "Danielle"}, "name"},
		{"empty item", payload{Name: "Dana", Items: []string{""}}, "items[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.in)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			var fieldErr FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("err = %v, want FieldError", err)
			}
			if fieldErr.Field != tt.wantField {
				t.Fatalf("field = %q, want %q", fieldErr.Field, tt.wantField)
			}
		})
	}
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}{"name":"b"}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("DecodeJSON accepted two documents")
	}
}
