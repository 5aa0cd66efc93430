package handler

import (
	"net/http"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/service"
)

// QuoteHandler exposes the engine's quote store.
type QuoteHandler struct {
	svc *service.OpportunityService
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(svc *service.OpportunityService) *QuoteHandler {
	return &QuoteHandler{svc: svc}
}

// ListSymbols returns every symbol with stored quotes.
// GET /api/symbols
func (h *QuoteHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	syms := h.svc.Symbols()
	if syms == nil {
		syms = []domain.Symbol{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": syms})
}

// GetQuotes returns the fresh quotes of a symbol, one per venue.
// GET /api/quotes/{symbol}
func (h *QuoteHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	sym := domain.Symbol(r.PathValue("symbol"))
	qs := h.svc.Quotes(sym)
	if qs == nil {
		qs = []domain.Quote{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": sym, "quotes": qs})
}
