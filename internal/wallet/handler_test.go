package wallet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type stubEnroller struct {
	enrolled map[string]string
}

func (s *stubEnroller) Enroll(_ context.Context, accountID, _ string, secret string) error {
	s.enrolled[accountID] = secret
	return nil
}

// newTestApp stands in for the credential middleware by trusting the
// X-Account header.
func newTestApp(t *testing.T) (*fiber.App, *Service, *stubEnroller) {
	t.Helper()
	svc, _ := newTestService(t)
	enroller := &stubEnroller{enrolled: map[string]string{}}
	h := NewHandler(svc, enroller)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/accounts", h.Register)
	authed := app.Group("", func(c *fiber.Ctx) error {
		if id := c.Get("X-Account"); id != "" {
			c.Locals(AccountIDKey, id)
		}
		return c.Next()
	})
	authed.Get("/wallet", h.Me)
	authed.Post("/wallet/deposit", h.Deposit)
	authed.Post("/wallet/transfer", h.Transfer)
	authed.Get("/wallet/activity", h.Activity)
	authed.Get("/wallet/audit", h.Audit)
	return app, svc, enroller
}

func doJSON(t *testing.T, app *fiber.App, method, path, accountID, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		req.Header.Set("X-Account", accountID)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func errorCode(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHandlerRegisterAndTransfer(t *testing.T) {
	app, svc, enroller := newTestApp(t)
	ctx := context.Background()

	status, out := doJSON(t, app, http.MethodPost, "/accounts", "", `{"address":"Alice@Example.com","display_name":"Alice","secret":"password123"}`)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%v)", status, out)
	}
	aliceID, _ := out["id"].(string)
	if out["address"] != "alice@example.com" || out["balance"] != "0.00" {
		t.Fatalf("unexpected account %v", out)
	}
	if enroller.enrolled[aliceID] != "password123" {
		t.Fatalf("expected secret to be enrolled")
	}

	if _, err := svc.RegisterAccount(ctx, "bob@example.com", "Bob"); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	status, out = doJSON(t, app, http.MethodPost, "/wallet/deposit", aliceID, `{"amount":"100.5"}`)
	if status != http.StatusOK || out["balance"] != "100.50" {
		t.Fatalf("unexpected deposit response %d %v", status, out)
	}

	status, out = doJSON(t, app, http.MethodPost, "/wallet/transfer", aliceID, `{"recipient_address":"bob@example.com","amount":"40.00"}`)
	if status != http.StatusOK || out["balance"] != "60.50" {
		t.Fatalf("unexpected transfer response %d %v", status, out)
	}
	entry, _ := out["entry"].(map[string]any)
	if entry["kind"] != "transfer_debit" || entry["counterparty_address"] != "bob@example.com" {
		t.Fatalf("unexpected entry %v", entry)
	}

	status, out = doJSON(t, app, http.MethodGet, "/wallet/activity?limit=1", aliceID, "")
	entries, _ := out["entries"].([]any)
	if status != http.StatusOK || len(entries) != 1 {
		t.Fatalf("unexpected activity %d %v", status, out)
	}

	status, out = doJSON(t, app, http.MethodGet, "/wallet/audit", aliceID, "")
	if status != http.StatusOK || out["consistent"] != true || out["stored_balance"] != "60.50" {
		t.Fatalf("unexpected audit %d %v", status, out)
	}
}

func TestHandlerErrorMapping(t *testing.T) {
	app, svc, _ := newTestApp(t)
	ctx := context.Background()
	alice, _ := svc.Provision(ctx, "alice@example.com", "Alice", amt("10.00"))
	_, _ = svc.RegisterAccount(ctx, "bob@example.com", "Bob")

	cases := []struct {
		name    string
		method  string
		path    string
		account string
		body    string
		status  int
		code    Code
	}{
		{"bad amount", http.MethodPost, "/wallet/deposit", alice.ID, `{"amount":"abc"}`, http.StatusBadRequest, CodeInvalidAmount},
		{"self transfer", http.MethodPost, "/wallet/transfer", alice.ID, `{"recipient_address":"alice@example.com","amount":"1.00"}`, http.StatusBadRequest, CodeSelfTransfer},
		{"unknown recipient", http.MethodPost, "/wallet/transfer", alice.ID, `{"recipient_address":"x@example.com","amount":"1.00"}`, http.StatusNotFound, CodeRecipientNotFound},
		{"insufficient", http.MethodPost, "/wallet/transfer", alice.ID, `{"recipient_address":"bob@example.com","amount":"11.00"}`, http.StatusConflict, CodeInsufficientBalance},
		{"taken", http.MethodPost, "/accounts", "", `{"address":"bob@example.com"}`, http.StatusConflict, CodeAddressTaken},
		{"weak secret", http.MethodPost, "/accounts", "", `{"address":"carol@example.com","secret":"abc"}`, http.StatusBadRequest, CodeInvalidSecret},
		{"unauthenticated", http.MethodGet, "/wallet", "", "", http.StatusUnauthorized, CodeUnauthorized},
		{"unknown account", http.MethodGet, "/wallet", "ghost", "", http.StatusNotFound, CodeAccountNotFound},
	}
	for _, tc := range cases {
		status, out := doJSON(t, app, tc.method, tc.path, tc.account, tc.body)
		if status != tc.status || errorCode(out) != string(tc.code) {
			t.Fatalf("%s: expected %d/%s, got %d/%v", tc.name, tc.status, tc.code, status, out)
		}
	}

	got, _ := svc.Account(ctx, alice.ID)
	if !got.Balance.Equal(amt("10.00")) {
		t.Fatalf("rejected requests must not change balance, got %s", got.Balance)
	}
}

func TestHandlerAcceptsNumericAmounts(t *testing.T) {
	app, svc, _ := newTestApp(t)
	acct, _ := svc.RegisterAccount(context.Background(), "alice@example.com", "Alice")

	status, out := doJSON(t, app, http.MethodPost, "/wallet/deposit", acct.ID, `{"amount":25}`)
	if status != http.StatusOK || out["balance"] != "25.00" {
		t.Fatalf("unexpected numeric deposit %d %v", status, out)
	}
	status, out = doJSON(t, app, http.MethodPost, "/wallet/deposit", acct.ID, `{"amount":0.5}`)
	if status != http.StatusOK || out["balance"] != "25.50" {
		t.Fatalf("unexpected fractional deposit %d %v", status, out)
	}

	for _, body := range []string{`{"amount":true}`, `{"amount":{"value":1}}`, `{"amount":null}`, `{"amount":0.001}`} {
		status, out := doJSON(t, app, http.MethodPost, "/wallet/deposit", acct.ID, body)
		if status != http.StatusBadRequest || errorCode(out) != string(CodeInvalidAmount) {
			t.Fatalf("%s: expected 400/%s, got %d/%v", body, CodeInvalidAmount, status, out)
		}
	}
}
