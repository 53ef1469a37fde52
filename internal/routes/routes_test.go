package routes

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/money"
	"github.com/congo-pay/walletledger/internal/wallet"
)

func newTestApp(t *testing.T, cache *redis.Client) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: wallet.ErrorHandler})
	cfg := config.Config{
		AppEnv:              "test",
		IdempotencyTTL:      time.Minute,
		LockTimeout:         time.Second,
		HistoryDefaultLimit: 10,
		HistoryMaxLimit:     100,
		SeedDemoAccounts:    true,
	}
	if err := Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func call(t *testing.T, app *fiber.App, method, path, user, body, idemKey string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+DemoSecret)))
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSetupSeedsDemoAccountsAndServesWallet(t *testing.T) {
	app := newTestApp(t, nil)

	status, out := call(t, app, http.MethodGet, "/api/v1/wallet", "alice@example.com", "", "")
	if status != http.StatusOK || out["balance"] != "1000.00" {
		t.Fatalf("unexpected wallet %d %v", status, out)
	}

	status, out = call(t, app, http.MethodPost, "/api/v1/wallet/transfer", "alice@example.com",
		`{"recipient_address":"bob@example.com","amount":"200.00"}`, "")
	if status != http.StatusOK || out["balance"] != "800.00" {
		t.Fatalf("unexpected transfer %d %v", status, out)
	}

	status, out = call(t, app, http.MethodGet, "/api/v1/wallet", "bob@example.com", "", "")
	if status != http.StatusOK || out["balance"] != "700.00" {
		t.Fatalf("unexpected bob wallet %d %v", status, out)
	}

	status, _ = call(t, app, http.MethodGet, "/api/v1/wallet", "", "", "")
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", status)
	}

	status, out = call(t, app, http.MethodGet, "/healthz", "", "", "")
	if status != http.StatusOK {
		t.Fatalf("unexpected health %d %v", status, out)
	}
}

func TestSetupReplaysIdempotentDeposit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := newTestApp(t, cache)
	for i := 0; i < 2; i++ {
		status, out := call(t, app, http.MethodPost, "/api/v1/wallet/deposit", "bob@example.com", `{"amount":"25.00"}`, "dep-1")
		if status != http.StatusOK || out["balance"] != "525.00" {
			t.Fatalf("attempt %d: unexpected deposit %d %v", i, status, out)
		}
	}

	status, _ := call(t, app, http.MethodPost, "/api/v1/wallet/deposit", "bob@example.com", `{"amount":"25.00"}`, "")
	if status != http.StatusBadRequest {
		t.Fatalf("expected missing key rejection, got %d", status)
	}
}

func TestSetupConcurrentSameKeyDepositsOnce(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := newTestApp(t, cache)
	authz := "Basic " + base64.StdEncoding.EncodeToString([]byte("bob@example.com:"+DemoSecret))

	const workers = 8
	statuses := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/deposit", strings.NewReader(`{"amount":"25.00"}`))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			req.Header.Set(fiber.HeaderAuthorization, authz)
			req.Header.Set("Idempotency-Key", "same")
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Errorf("deposit: %v", err)
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	for status := range statuses {
		if status != http.StatusOK && status != http.StatusConflict {
			t.Fatalf("unexpected status %d", status)
		}
	}

	status, out := call(t, app, http.MethodGet, "/api/v1/wallet", "bob@example.com", "", "")
	if status != http.StatusOK || out["balance"] != "525.00" {
		t.Fatalf("expected a single deposit, got %d %v", status, out)
	}
}

func TestSeedDemoAccountsCompletesInterruptedSetup(t *testing.T) {
	ctx := context.Background()
	wallets := wallet.NewService(ledger.NewEngine(ledger.NewInMemory()), nil, nil, wallet.DefaultLimits())
	ids := identity.NewService(identity.NewMemoryRepository(), identity.WithHashCost(bcrypt.MinCost))

	// Registered, but neither credited nor enrolled.
	if _, err := wallets.RegisterAccount(ctx, "alice@example.com", "Alice"); err != nil {
		t.Fatalf("register: %v", err)
	}

	for run := 0; run < 2; run++ {
		if err := SeedDemoAccounts(ctx, wallets, ids, logging.Discard()); err != nil {
			t.Fatalf("seed run %d: %v", run, err)
		}
	}

	want := map[string]string{"alice@example.com": "1000.00", "bob@example.com": "500.00"}
	for address, balance := range want {
		id, err := ids.ResolveIdentity(ctx, identity.Credential{Address: address, Secret: DemoSecret})
		if err != nil {
			t.Fatalf("resolve %s: %v", address, err)
		}
		acct, err := wallets.Account(ctx, id)
		if err != nil {
			t.Fatalf("account %s: %v", address, err)
		}
		if !acct.Balance.Equal(money.MustParse(balance)) {
			t.Fatalf("%s: expected %s, got %s", address, balance, acct.Balance)
		}
		report, err := wallets.Audit(ctx, id)
		if err != nil || !report.Consistent || report.Entries != 1 {
			t.Fatalf("%s: unexpected audit %+v (%v)", address, report, err)
		}
	}
}
