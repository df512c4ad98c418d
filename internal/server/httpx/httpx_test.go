package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type sampleForm struct {
	Number string `json:"number" validate:"required,notblank,max=5"`
	Code   string `json:"code" validate:"omitempty,min=3,max=4"`
}

func TestBind_Valid(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"number":"123","code":"1234"}`))
	var f sampleForm
	if err := Bind(req, &f); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if f.Number != "123" || f.Code != "1234" {
		t.Errorf("form = %+v", f)
	}
}

func TestBind_Malformed(t *testing.T) {
	for _, body := range []string{"", "{", "[]", `{"number":5}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var f sampleForm
		if err := Bind(req, &f); !errors.Is(err, ErrMalformedBody) {
			t.Errorf("Bind(%q): want ErrMalformedBody, got %v", body, err)
		}
	}
}

func TestBind_ValidationErrorsUseJSONNames(t *testing.T) {
	testCases := []struct {
		name  string
		body  string
		field string
		tag   string
	}{
		{"missing", `{}`, "number", "required"},
		{"blank", `{"number":"   "}`, "number", "notblank"},
		{"too long", `{"number":"123456"}`, "number", "max"},
		{"short code", `{"number":"1","code":"12"}`, "code", "min"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var f sampleForm
			err := Bind(req, &f)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Bind: want ValidationError, got %v", err)
			}
			if len(ve.Fields) == 0 || ve.Fields[0].Field != tc.field || ve.Fields[0].Tag != tc.tag {
				t.Errorf("fields = %+v, want %s/%s first", ve.Fields, tc.field, tc.tag)
			}
			if ve.Fields[0].Message == "" {
				t.Error("message should not be empty")
			}
		})
	}
}

func TestMessage_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Message(rec, http.StatusForbidden, "nope")
	if rec.Code != http.StatusForbidden {
		t.Errorf("code = %d, want 403", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != float64(403) || body["message"] != "nope" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["errors"]; ok {
		t.Error("errors should be omitted when empty")
	}
}

func TestValidationFailed(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationFailed(rec, []FieldError{{Field: "otp", Tag: "max", Message: "otp must be at most 4 characters long"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
	var body Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != http.StatusBadRequest || len(body.Errors) != 1 || body.Errors[0].Field != "otp" {
		t.Errorf("body = %+v", body)
	}
}
