package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
	"github.com/October-1030/AAOKX-sub001/internal/service"
)

// OpportunityHandler serves the opportunity endpoints.
type OpportunityHandler struct {
	svc    *service.OpportunityService
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(svc *service.OpportunityService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{svc: svc, logger: logger.With(slog.String("handler", "opportunity"))}
}

// ListLive returns live opportunities, best first.
// GET /api/opportunities?symbol=&venue=&limit=
func (h *OpportunityHandler) ListLive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opps := h.svc.Live(service.Filter{
		Symbol: domain.Symbol(q.Get("symbol")),
		Venue:  domain.VenueID(q.Get("venue")),
		Limit:  parseLimit(r),
	})
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps, "count": len(opps)})
}

// Get returns one opportunity, live or historical.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "opportunity not found")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get opportunity", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load opportunity")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Revalidate re-checks an opportunity against the current quotes. Unknown
// ids answer 404; known ids always answer 200 with the verdict.
// POST /api/opportunities/{id}/revalidate
func (h *OpportunityHandler) Revalidate(w http.ResponseWriter, r *http.Request) {
	res := h.svc.Revalidate(r.PathValue("id"))
	if res.Reason == domain.ValidationNotFound {
		writeJSON(w, http.StatusNotFound, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// History pages through recorded opportunities.
// GET /api/opportunities/history?limit=&offset=&since=&until=
func (h *OpportunityHandler) History(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := h.svc.History(r.Context(), opts)
	if errors.Is(err, domain.ErrNotConfigured) {
		writeError(w, http.StatusNotImplemented, "history requires postgres (mode=full)")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list history", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if recs == nil {
		recs = []domain.OpportunityRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": recs, "count": len(recs)})
}
