// Package httpapi exposes the marketplace REST API.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/blr-market/marketplace/internal/app"
	"github.com/blr-market/marketplace/internal/app/domain/account"
	"github.com/blr-market/marketplace/internal/app/domain/listing"
	"github.com/blr-market/marketplace/internal/app/domain/offer"
	"github.com/blr-market/marketplace/internal/app/metrics"
	accountssvc "github.com/blr-market/marketplace/internal/app/services/accounts"
	listingssvc "github.com/blr-market/marketplace/internal/app/services/listings"
	"github.com/blr-market/marketplace/internal/config"
	"github.com/blr-market/marketplace/internal/errors"
	"github.com/blr-market/marketplace/pkg/logger"
)

// Handler bundles HTTP endpoints for the application services.
type Handler struct {
	app    *app.Application
	issuer *TokenIssuer
	audit  *auditLog
	log    *logger.Logger
}

// NewHandler returns the router exposing the REST API, wrapped with CORS and
// request metrics.
func NewHandler(application *app.Application, authCfg config.AuthConfig, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(os.Getenv("AUDIT_LOG_PATH"))
	if err != nil {
		log.WithError(err).Warn("audit file sink disabled")
	}

	h := &Handler{
		app:    application,
		issuer: NewTokenIssuer(authCfg.JWTSecret, time.Duration(authCfg.TokenTTLMins)*time.Minute),
		audit:  newAuditLog(0, sink),
		log:    log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)

	authed := r.PathPrefix("/").Subrouter()
	authed.Use(h.requireAuth, h.auditMiddleware)
	authed.HandleFunc("/listings", h.listListings).Methods(http.MethodGet)
	authed.HandleFunc("/listings", h.createListing).Methods(http.MethodPost)
	authed.HandleFunc("/listings/{id}", h.getListing).Methods(http.MethodGet)
	authed.HandleFunc("/listings/{id}/offers", h.placeOffer).Methods(http.MethodPost)
	authed.HandleFunc("/listings/{id}/offers/{offerID}/accept", h.acceptOffer).Methods(http.MethodPost)
	authed.HandleFunc("/listings/{id}/offers/{offerID}", h.withdrawOffer).Methods(http.MethodDelete)
	authed.HandleFunc("/audit", h.auditEntries).Methods(http.MethodGet)

	return metrics.InstrumentHandler(corsMiddleware(r))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}

	acct, err := h.app.Accounts.Register(r.Context(), accountssvc.RegisterInput{
		Username: payload.Username,
		Password: payload.Password,
		Email:    payload.Email,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse(acct))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}

	acct, err := h.app.Accounts.Authenticate(r.Context(), payload.Username, payload.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := h.issuer.Issue(acct)
	if err != nil {
		writeServiceError(w, errors.Internal("issue token", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token,
		"account": accountResponse(acct),
	})
}

func (h *Handler) listListings(w http.ResponseWriter, r *http.Request) {
	lsts, err := h.app.Listings.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]listingPayload, 0, len(lsts))
	for _, lst := range lsts {
		out = append(out, listingResponse(lst))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())

	var payload struct {
		Title         string   `json:"title"`
		Description   string   `json:"description"`
		SalePrice     float64  `json:"sale_price"`
		PurchasePrice *float64 `json:"purchase_price"`
		Label         string   `json:"label"`
		Deadline      string   `json:"deadline"`
		Quantity      int      `json:"quantity"`
		Category      string   `json:"category"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}

	lst, err := h.app.Listings.Create(r.Context(), id.ID, listingssvc.CreateInput{
		Title:         payload.Title,
		Description:   payload.Description,
		SalePrice:     payload.SalePrice,
		PurchasePrice: payload.PurchasePrice,
		Label:         payload.Label,
		Deadline:      payload.Deadline,
		Quantity:      payload.Quantity,
		Category:      payload.Category,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listingResponse(lst))
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) {
	listingID := mux.Vars(r)["id"]

	lst, err := h.app.Listings.Get(r.Context(), listingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	offs, err := h.app.Offers.ListForListing(r.Context(), listingID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]offerPayload, 0, len(offs))
	for _, off := range offs {
		out = append(out, offerResponse(off))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"listing": listingResponse(lst),
		"offers":  out,
	})
}

func (h *Handler) placeOffer(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	listingID := mux.Vars(r)["id"]

	var payload struct {
		Price float64 `json:"price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}

	off, err := h.app.Offers.Place(r.Context(), id.ID, listingID, payload.Price)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offerResponse(off))
}

func (h *Handler) acceptOffer(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	vars := mux.Vars(r)

	off, err := h.app.Offers.Accept(r.Context(), id.ID, vars["id"], vars["offerID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offerResponse(off))
}

func (h *Handler) withdrawOffer(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	vars := mux.Vars(r)

	if err := h.app.Offers.Withdraw(r.Context(), id.ID, vars["id"], vars["offerID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) auditEntries(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if id.Role != account.RoleOperator {
		writeServiceError(w, errors.Forbidden("operator access required"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.audit.listLimit(limit))
}

// Response payloads ----------------------------------------------------------

type accountPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
}

func accountResponse(acct account.Account) accountPayload {
	return accountPayload{ID: acct.ID, Username: acct.Name, Role: string(acct.Role), Email: acct.Email}
}

type listingPayload struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	SalePrice       float64  `json:"sale_price"`
	PurchasePrice   *float64 `json:"purchase_price,omitempty"`
	Label           string   `json:"label,omitempty"`
	Deadline        string   `json:"deadline"`
	Quantity        int      `json:"quantity"`
	Category        string   `json:"category,omitempty"`
	SellerID        string   `json:"seller_id"`
	Status          string   `json:"status"`
	DiscountPercent *float64 `json:"discount_percent,omitempty"`
}

func listingResponse(lst listing.Listing) listingPayload {
	p := listingPayload{
		ID:            lst.ID,
		Title:         lst.Title,
		Description:   lst.Description,
		SalePrice:     lst.SalePrice,
		PurchasePrice: lst.PurchasePrice,
		Label:         string(lst.Label),
		Deadline:      lst.Deadline.Format("2006-01-02"),
		Quantity:      lst.Quantity,
		Category:      lst.Category,
		SellerID:      lst.SellerID,
		Status:        string(lst.Status),
	}
	if pct, ok := lst.DiscountPercent(); ok {
		p.DiscountPercent = &pct
	}
	return p
}

type offerPayload struct {
	ID        string    `json:"id"`
	ListingID string    `json:"listing_id"`
	BuyerID   string    `json:"buyer_id"`
	Price     float64   `json:"price"`
	Accepted  bool      `json:"accepted"`
	CreatedAt time.Time `json:"created_at"`
}

func offerResponse(off offer.Offer) offerPayload {
	return offerPayload{
		ID:        off.ID,
		ListingID: off.ListingID,
		BuyerID:   off.BuyerID,
		Price:     off.Price,
		Accepted:  off.Accepted,
		CreatedAt: off.CreatedAt,
	}
}

// JSON helpers ---------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError maps the error taxonomy onto HTTP statuses. Unknown
// errors become an opaque 500.
func writeServiceError(w http.ResponseWriter, err error) {
	if svcErr := errors.GetServiceError(err); svcErr != nil {
		body := map[string]interface{}{
			"error": svcErr.Message,
			"code":  string(svcErr.Code),
		}
		if len(svcErr.Details) > 0 {
			body["details"] = svcErr.Details
		}
		writeJSON(w, svcErr.HTTPStatus, body)
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error": "internal error",
		"code":  string(errors.CodeInternal),
	})
}
