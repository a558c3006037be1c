package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/metinatakli/hostel-booking/api"
	"github.com/metinatakli/hostel-booking/internal/mailer"
	"github.com/metinatakli/hostel-booking/internal/mocks"
	"github.com/metinatakli/hostel-booking/internal/validator"
)

func newTestApplication(opts ...func(*Application)) *Application {
	app := &Application{
		config:         Config{Env: "test"},
		validator:      validator.NewValidator(),
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessionManager: scs.New(),
		userRepo:       &mocks.MockUserRepo{},
		bookingRepo:    &mocks.MockBookingRepo{},
		mailer:         mailer.NewMockMailer(),
		payments:       &mocks.MockSettlementService{},
	}

	for _, opt := range opts {
		opt(app)
	}

	return app
}

func setupTestSession(t *testing.T, app *Application, r *http.Request, userId int) *http.Request {
	ctx, err := app.sessionManager.Load(r.Context(), "session")
	if err != nil {
		t.Errorf("Failed to load session: %v", err)
	}

	app.sessionManager.Put(ctx, SessionKeyUserId.String(), userId)

	return r.WithContext(ctx)
}

func executeRequest(t *testing.T, method, url string, body any) (*httptest.ResponseRecorder, *http.Request) {
	var reader io.Reader = http.NoBody

	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(jsonData)
	}

	r := httptest.NewRequest(method, url, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	return w, r
}

type errorExpectation struct {
	wantStatus     int
	wantErrMessage string
}

// checkErrorResponse matches wantErrMessage against the message of a plain
// error response, or against any issue of a validation error response.
func checkErrorResponse(t *testing.T, w *httptest.ResponseRecorder, tt errorExpectation) {
	if tt.wantStatus >= 200 && tt.wantStatus < 300 {
		return
	}

	body := w.Body.Bytes()

	var validationResp api.ValidationErrorResponse
	if err := json.Unmarshal(body, &validationResp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}

	if tt.wantErrMessage == "" {
		return
	}

	if len(validationResp.ValidationErrors) > 0 {
		for _, vErr := range validationResp.ValidationErrors {
			if vErr.Issue == tt.wantErrMessage {
				return
			}
		}

		t.Errorf("Expected validation error message '%s' not found in response %s", tt.wantErrMessage, body)
		return
	}

	if validationResp.Message != tt.wantErrMessage {
		t.Errorf("Error message = %v, want %v", validationResp.Message, tt.wantErrMessage)
	}
}

func ptr[T any](v T) *T {
	return &v
}
