package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// BankAccounts defines the payment account operations the bank handler
// requires.
type BankAccounts interface {
	Deposit(account common.Address, amount *big.Int)
	BalanceOf(account common.Address) *big.Int
}

// BankHandler serves payment-account queries and the operator deposit
// endpoint. Deposits are mounted on the admin surface; balances are public.
type BankHandler struct {
	bank   BankAccounts
	logger *slog.Logger
}

// NewBankHandler creates a BankHandler.
func NewBankHandler(bank BankAccounts, logger *slog.Logger) *BankHandler {
	return &BankHandler{bank: bank, logger: logger}
}

// GetBalance returns an account's spendable payment balance.
// GET /api/bank/{address}
func (h *BankHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(r.PathValue("address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account.Hex(),
		"balance": h.bank.BalanceOf(account).String(),
	})
}

type depositRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// Deposit credits an account with payment currency.
// POST /api/admin/deposit
func (h *BankHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	account, err := parseAddress(req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseBigInt(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.bank.Deposit(account, amount)
	h.logger.InfoContext(r.Context(), "account funded",
		slog.String("account", account.Hex()),
		slog.String("amount", amount.String()),
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"account": account.Hex(),
		"balance": h.bank.BalanceOf(account).String(),
	})
}
