package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/sokolink-backend/pkg/errors"
)

type sampleRequest struct {
	Method string `json:"method" validate:"required,payment_method"`
	Phone  string `json:"phone" validate:"omitempty,e164"`
}

func TestDecodeJSONBody(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown method", `{"method":"paypal"}`, "method"},
		{"missing method", `{}`, "method"},
		{"bad phone", `{"method":"m-pesa","phone":"0712"}`, "phone"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		var dest sampleRequest
		err := DecodeJSONBody(req, &dest)
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		details, ok := typed.Details().(map[string]string)
		if !ok || details[tc.field] == "" {
			t.Fatalf("%s: expected detail for %s, got %v", tc.name, tc.field, typed.Details())
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"M-Pesa","phone":"+255712345678"}`))
	var dest sampleRequest
	if err := DecodeJSONBody(req, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"visa","pan":"4242"}`))
	var dest sampleRequest
	if err := DecodeJSONBody(req, &dest); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("id", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	got, err := ParseUUIDParam(withParam(id.String()), "id")
	if err != nil || got != id {
		t.Fatalf("parse = %s, %v", got, err)
	}
	if _, err := ParseUUIDParam(withParam("nope"), "id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
