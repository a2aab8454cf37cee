package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/peertutor/coinledger/internal/handlers/render"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
)

type transactionResponse struct {
	ID          uuid.UUID  `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	Amount      int64      `json:"amount"`
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	RelatedID   *uuid.UUID `json:"related_id,omitempty"`
	Status      string     `json:"status"`
}

func toTransactionResponse(tr models.Transaction) transactionResponse {
	return transactionResponse{
		ID:          tr.ID,
		CreatedAt:   tr.CreatedAt,
		Amount:      tr.Amount,
		Kind:        tr.Kind,
		Description: tr.Description,
		RelatedID:   tr.RelatedID,
		Status:      tr.Status,
	}
}

func handlePurchaseCoins(service ledgerService, l logger.Logger) http.Handler {
	type request struct {
		Amount          int64  `json:"amount" validate:"required,gt=0"`
		PaymentMethodID string `json:"payment_method_id" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tr, err := service.Purchase(r.Context(), user.ID, req.Amount, req.PaymentMethodID)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSONWithStatus(w, toTransactionResponse(tr), http.StatusCreated)
	})
}

func handleGetBalance(service ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Balance int64 `json:"balance"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		balance, err := service.GetBalance(r.Context(), user.ID)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		render.JSON(w, response{Balance: balance})
	})
}

func handleListTransactions(service ledgerService, l logger.Logger) http.Handler {
	type response struct {
		Transactions []transactionResponse `json:"transactions"`
		HasMore      bool                  `json:"has_more"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := mustUser(w, r)
		if !ok {
			return
		}

		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", 0)

		result, err := service.ListTransactions(r.Context(), user.ID, page, limit)
		if err != nil {
			serviceError(w, l, err)
			return
		}

		resp := response{
			Transactions: make([]transactionResponse, 0, len(result.Transactions)),
			HasMore:      result.HasMore,
		}
		for _, tr := range result.Transactions {
			resp.Transactions = append(resp.Transactions, toTransactionResponse(tr))
		}

		render.JSON(w, resp)
	})
}

// queryInt reads an integer query param, falling back to def when the param
// is absent or malformed
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return value
}
