package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rl1809/nft-market/internal/core/domain"
	"github.com/rl1809/nft-market/internal/core/service"
)

// maxBodySize caps request bodies; every request here is a small JSON object.
const maxBodySize = 64 << 10

type HTTPHandler struct {
	marketService *service.MarketService
	logger        *slog.Logger
}

func NewHTTPHandler(marketService *service.MarketService, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{marketService: marketService, logger: logger}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /api/fee", h.CurrentFee)
	mux.HandleFunc("POST /api/listings", h.CreateListing)
	mux.HandleFunc("GET /api/listings", h.FetchActiveItems)
	mux.HandleFunc("GET /api/items/{id}", h.GetItem)
	mux.HandleFunc("POST /api/items/{id}/purchase", h.Purchase)
	mux.HandleFunc("GET /api/accounts/{identity}/items", h.FetchOwnedItems)
	mux.HandleFunc("GET /api/accounts/{identity}/listings", h.FetchSellerItems)
	mux.HandleFunc("GET /api/accounts/{identity}/proceeds", h.Proceeds)
	mux.HandleFunc("POST /api/accounts/{identity}/withdraw", h.WithdrawProceeds)
	mux.HandleFunc("GET /api/treasury", h.TreasuryBalance)
	mux.HandleFunc("POST /api/treasury/withdraw", h.WithdrawTreasury)
}

func (h *HTTPHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req CreateListingHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	price, err := domain.ParseAmount(req.Price)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: price: %w", domain.ErrInvalidListing, err))
		return
	}
	feePaid, err := domain.ParseAmount(req.FeePaid)
	if err != nil {
		h.writeError(w, err)
		return
	}

	item, err := h.marketService.CreateListing(r.Context(), domain.Listing{
		AssetContract: req.AssetContract,
		TokenID:       req.TokenID,
		MetadataURI:   req.MetadataURI,
		Seller:        domain.Identity(req.Seller),
		Price:         price,
	}, feePaid)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *HTTPHandler) FetchActiveItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toItemResponses(h.marketService.FetchActiveItems()))
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}

	item, err := h.marketService.GetItem(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.itemID(w, r)
	if !ok {
		return
	}
	var req PurchaseHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	payment, err := domain.ParseAmount(req.Payment)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %w", domain.ErrPaymentMismatch, err))
		return
	}

	receipt, err := h.marketService.SettleSale(r.Context(), req.RequestID, id, payment, domain.Identity(req.Buyer))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(receipt))
}

func (h *HTTPHandler) FetchOwnedItems(w http.ResponseWriter, r *http.Request) {
	owner := domain.Identity(r.PathValue("identity"))
	writeJSON(w, http.StatusOK, toItemResponses(h.marketService.FetchOwnedItems(owner)))
}

func (h *HTTPHandler) FetchSellerItems(w http.ResponseWriter, r *http.Request) {
	seller := domain.Identity(r.PathValue("identity"))
	writeJSON(w, http.StatusOK, toItemResponses(h.marketService.FetchSellerItems(seller)))
}

func (h *HTTPHandler) Proceeds(w http.ResponseWriter, r *http.Request) {
	seller := domain.Identity(r.PathValue("identity"))
	writeJSON(w, http.StatusOK, BalanceResponse{
		Identity: seller.String(),
		Balance:  h.marketService.Proceeds(seller).String(),
	})
}

// WithdrawProceeds trusts the identity in the path. Callers are
// authenticated by the session layer in front of this server, which only
// routes a seller to their own path.
func (h *HTTPHandler) WithdrawProceeds(w http.ResponseWriter, r *http.Request) {
	seller := domain.Identity(r.PathValue("identity"))
	var req WithdrawHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.marketService.WithdrawProceeds(r.Context(), seller, amount); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		Identity: seller.String(),
		Balance:  h.marketService.Proceeds(seller).String(),
	})
}

func (h *HTTPHandler) CurrentFee(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"fee": h.marketService.CurrentFee().String()})
}

func (h *HTTPHandler) TreasuryBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BalanceResponse{Balance: h.marketService.TreasuryBalance().String()})
}

func (h *HTTPHandler) WithdrawTreasury(w http.ResponseWriter, r *http.Request) {
	var req TreasuryWithdrawHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}

	err = h.marketService.WithdrawTreasury(r.Context(), domain.Identity(req.Caller), amount, domain.Identity(req.To))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Balance: h.marketService.TreasuryBalance().String()})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) itemID(w http.ResponseWriter, r *http.Request) (domain.ItemID, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid item id"})
		return 0, false
	}
	return domain.ItemID(id), true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	m := classify(err)
	if m.status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	writeJSON(w, m.status, ErrorResponse{Error: m.message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
