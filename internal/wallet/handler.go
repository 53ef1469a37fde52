package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/account"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/money"
)

// AccountIDKey is the fiber.Ctx local holding the authenticated account id.
const AccountIDKey = "account_id"

// Enroller stores a secret for a freshly registered account.
type Enroller interface {
	Enroll(ctx context.Context, accountID, address, secret string) error
}

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service  *Service
	enroller Enroller
}

// NewHandler builds a wallet HTTP handler. Without an enroller, accounts
// registered over HTTP cannot authenticate.
func NewHandler(service *Service, enroller Enroller) *Handler {
	return &Handler{service: service, enroller: enroller}
}

type registerRequest struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name"`
	Secret      string `json:"secret"`
}

// amountField takes an amount written as a JSON string or a bare JSON
// number. The raw text is kept so numbers never pass through float64.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	if string(b) == "null" {
		*a = ""
		return nil
	}
	*a = amountField(b)
	return nil
}

type amountRequest struct {
	Amount amountField `json:"amount"`
}

type transferRequest struct {
	RecipientAddress string      `json:"recipient_address"`
	Amount           amountField `json:"amount"`
	Description      string      `json:"description"`
}

type accountResponse struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	DisplayName string    `json:"display_name"`
	Balance     string    `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
}

type entryResponse struct {
	ID                  string    `json:"id"`
	Kind                string    `json:"kind"`
	Amount              string    `json:"amount"`
	CounterpartyAddress string    `json:"counterparty_address,omitempty"`
	Description         string    `json:"description"`
	Timestamp           time.Time `json:"timestamp"`
	BalanceAfter        string    `json:"balance_after"`
}

type receiptResponse struct {
	Balance string        `json:"balance"`
	Entry   entryResponse `json:"entry"`
}

type auditResponse struct {
	AccountID     string         `json:"account_id"`
	Stored        string         `json:"stored_balance"`
	Replayed      string         `json:"replayed_balance"`
	Entries       int            `json:"entries"`
	Consistent    bool           `json:"consistent"`
	FirstMismatch *entryResponse `json:"first_mismatch,omitempty"`
}

type errorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Register creates an account and, when a secret is supplied, enrols it.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Secret != "" && len(req.Secret) < identity.MinSecretLength {
		return &Error{Code: CodeInvalidSecret, Category: CategoryValidation, Err: identity.ErrWeakSecret}
	}

	acct, err := h.service.RegisterAccount(c.UserContext(), req.Address, req.DisplayName)
	if err != nil {
		return err
	}
	if req.Secret != "" && h.enroller != nil {
		if err := h.enroller.Enroll(c.UserContext(), acct.ID, acct.Address, req.Secret); err != nil {
			return wrap(err)
		}
	}
	return c.Status(http.StatusCreated).JSON(toAccountResponse(acct))
}

// Me returns the authenticated account and its balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	acct, err := h.service.Account(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toAccountResponse(acct))
}

// Deposit credits the authenticated account.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.Parse(string(req.Amount))
	if err != nil {
		return wrap(err)
	}
	receipt, err := h.service.Deposit(c.UserContext(), id, amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toReceiptResponse(receipt))
}

// Transfer sends money from the authenticated account.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.Parse(string(req.Amount))
	if err != nil {
		return wrap(err)
	}
	receipt, err := h.service.Send(c.UserContext(), id, req.RecipientAddress, amount, req.Description)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toReceiptResponse(receipt))
}

// Activity lists recent entries of the authenticated account.
func (h *Handler) Activity(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	entries, err := h.service.RecentActivity(c.UserContext(), id, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": out})
}

// Audit reports whether the stored balance matches the replayed log.
func (h *Handler) Audit(c *fiber.Ctx) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}
	report, err := h.service.Audit(c.UserContext(), id)
	if err != nil {
		return err
	}
	resp := auditResponse{
		AccountID:  report.AccountID,
		Stored:     money.Format(report.Stored),
		Replayed:   money.Format(report.Replayed),
		Entries:    report.Entries,
		Consistent: report.Consistent,
	}
	if report.FirstMismatch != nil {
		e := toEntryResponse(*report.FirstMismatch)
		resp.FirstMismatch = &e
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// ErrorHandler renders every error as {"error": {"code", "message"}}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	body := errorBody{Code: CodeInternal, Message: "internal error"}

	var werr *Error
	var ferr *fiber.Error
	switch {
	case errors.As(err, &werr):
		body = errorBody{Code: werr.Code, Message: werr.Error()}
		if werr.Category == CategoryInternal {
			body.Message = "internal error"
		}
	case errors.As(err, &ferr):
		body = errorBody{Code: codeForStatus(ferr.Code), Message: ferr.Message}
	}
	return c.Status(StatusOf(err)).JSON(fiber.Map{"error": body})
}

// StatusOf returns the HTTP status ErrorHandler writes for err.
func StatusOf(err error) int {
	var werr *Error
	var ferr *fiber.Error
	switch {
	case errors.As(err, &werr):
		return statusFor(werr.Category)
	case errors.As(err, &ferr):
		return ferr.Code
	default:
		return http.StatusInternalServerError
	}
}

func statusFor(category Category) int {
	switch category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) Code {
	switch {
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status >= 500:
		return CodeInternal
	default:
		return Code(strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_")))
	}
}

func accountID(c *fiber.Ctx) (string, error) {
	id, _ := c.Locals(AccountIDKey).(string)
	if id == "" {
		return "", fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}

func toAccountResponse(acct account.Account) accountResponse {
	return accountResponse{
		ID:          acct.ID,
		Address:     acct.Address,
		DisplayName: acct.DisplayName,
		Balance:     money.Format(acct.Balance),
		CreatedAt:   acct.CreatedAt,
	}
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:                  e.ID,
		Kind:                string(e.Kind),
		Amount:              money.Format(e.Amount),
		CounterpartyAddress: e.CounterpartyAddress,
		Description:         e.Description,
		Timestamp:           e.Timestamp,
		BalanceAfter:        money.Format(e.BalanceAfter),
	}
}

func toReceiptResponse(r Receipt) receiptResponse {
	return receiptResponse{Balance: money.Format(r.Balance), Entry: toEntryResponse(r.Entry)}
}
