package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"stellar-nft-market/internal/domain"
	"stellar-nft-market/internal/market"
	"stellar-nft-market/internal/signing"
	"stellar-nft-market/internal/storage"
	"stellar-nft-market/internal/txassemble"
	"stellar-nft-market/internal/validate"
)

// api exposes the marketplace service over HTTP/JSON.
type api struct {
	service *market.Service
	logger  *log.Logger
	started time.Time
	served  atomic.Int64
}

func newAPI(service *market.Service, logger *log.Logger) *api {
	return &api{
		service: service,
		logger:  logger,
		started: time.Now(),
	}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/listings", a.handleList)
	mux.HandleFunc("GET /v1/listings", a.handleGetListing)
	mux.HandleFunc("GET /v1/listings/by-creator", a.handleListByCreator)
	mux.HandleFunc("POST /v1/bids", a.handleBid)
	mux.HandleFunc("GET /v1/bids", a.handleGetBids)
	mux.HandleFunc("POST /v1/buy", a.handleBuy)
	mux.HandleFunc("POST /v1/accept-bid", a.handleAcceptBid)
	mux.HandleFunc("POST /v1/cancel", a.handleCancel)
	mux.HandleFunc("POST /v1/auctions/finalize", a.handleFinalize)
	mux.HandleFunc("GET /v1/sales", a.handleGetSales)
	mux.HandleFunc("/status", a.handleStatus)
}

type listPayload struct {
	AssetCode    string `json:"assetCode"`
	Issuer       string `json:"issuer"`
	Kind         string `json:"kind"`
	Creator      string `json:"creator"`
	Price        string `json:"price"`
	MetadataRef  string `json:"metadataRef,omitempty"`
	AuctionStart int64  `json:"auctionStart,omitempty"`
	AuctionEnd   int64  `json:"auctionEnd,omitempty"`
}

type listResponse struct {
	Listing *domain.Listing  `json:"listing"`
	Receipt *signing.Receipt `json:"receipt"`
}

func (a *api) handleList(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	var p listPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	listing, receipt, err := a.service.List(r.Context(), market.ListRequest{
		Token:        domain.Token{AssetCode: p.AssetCode, Issuer: p.Issuer},
		Kind:         domain.ListingKind(p.Kind),
		Creator:      p.Creator,
		Price:        p.Price,
		MetadataRef:  p.MetadataRef,
		AuctionStart: p.AuctionStart,
		AuctionEnd:   p.AuctionEnd,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, listResponse{Listing: listing, Receipt: receipt})
}

func (a *api) handleGetListing(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	token, ok := tokenFromQuery(w, r)
	if !ok {
		return
	}
	view, err := a.service.GetListing(r.Context(), token)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *api) handleListByCreator(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	creator := r.URL.Query().Get("creator")
	if creator == "" {
		writeError(w, http.StatusBadRequest, "creator query parameter is required")
		return
	}
	listings, err := a.service.ListByCreator(r.Context(), creator)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

type bidPayload struct {
	AssetCode string `json:"assetCode"`
	Issuer    string `json:"issuer"`
	Bidder    string `json:"bidder"`
	Amount    string `json:"amount"`
}

type bidResponse struct {
	Bid     *domain.Bid      `json:"bid"`
	Receipt *signing.Receipt `json:"receipt"`
}

func (a *api) handleBid(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	var p bidPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token := domain.Token{AssetCode: p.AssetCode, Issuer: p.Issuer}
	bid, receipt, err := a.service.Bid(r.Context(), token, p.Bidder, p.Amount)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bidResponse{Bid: bid, Receipt: receipt})
}

func (a *api) handleGetBids(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	token, ok := tokenFromQuery(w, r)
	if !ok {
		return
	}
	bids, err := a.service.GetBids(r.Context(), token)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bids)
}

type buyPayload struct {
	AssetCode string `json:"assetCode"`
	Issuer    string `json:"issuer"`
	Buyer     string `json:"buyer"`
}

type saleResponse struct {
	Sale    *domain.SaleRecord `json:"sale"`
	Receipt *signing.Receipt   `json:"receipt"`
}

func (a *api) handleBuy(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	var p buyPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token := domain.Token{AssetCode: p.AssetCode, Issuer: p.Issuer}
	sale, receipt, err := a.service.Buy(r.Context(), token, p.Buyer)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saleResponse{Sale: sale, Receipt: receipt})
}

type actorPayload struct {
	AssetCode string `json:"assetCode"`
	Issuer    string `json:"issuer"`
	Actor     string `json:"actor"`
}

func (a *api) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	var p actorPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token := domain.Token{AssetCode: p.AssetCode, Issuer: p.Issuer}
	sale, receipt, err := a.service.AcceptBid(r.Context(), token, p.Actor)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saleResponse{Sale: sale, Receipt: receipt})
}

func (a *api) handleCancel(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	var p actorPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token := domain.Token{AssetCode: p.AssetCode, Issuer: p.Issuer}
	receipt, err := a.service.Cancel(r.Context(), token, p.Actor)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipt": receipt})
}

type finalizePayload struct {
	AssetCode string `json:"assetCode"`
	Issuer    string `json:"issuer"`
}

func (a *api) handleFinalize(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	var p finalizePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token := domain.Token{AssetCode: p.AssetCode, Issuer: p.Issuer}
	outcome, err := a.service.CheckAndFinalizeAuction(r.Context(), token)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (a *api) handleGetSales(w http.ResponseWriter, r *http.Request) {
	a.served.Add(1)
	token, ok := tokenFromQuery(w, r)
	if !ok {
		return
	}
	sales, err := a.service.GetSales(r.Context(), token)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status          string `json:"status"`
	Uptime          string `json:"uptime"`
	RequestsHandled int64  `json:"requests_handled"`
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:          "running",
		Uptime:          time.Since(a.started).String(),
		RequestsHandled: a.served.Load(),
	})
}

// writeServiceError maps domain and infrastructure errors to HTTP
// statuses. Indeterminate submissions are 504 so callers know the
// outcome is unresolved, not rejected.
func (a *api) writeServiceError(w http.ResponseWriter, err error) {
	var (
		codeErr    *validate.InvalidAssetCodeError
		priceErr   *validate.InvalidPriceError
		stateErr   *txassemble.ResourceStateError
		submitErr  *txassemble.SubmissionError
		pendingErr *signing.IndeterminateOutcomeError
	)
	switch {
	case errors.As(err, &codeErr), errors.As(err, &priceErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrNotCreator):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, market.ErrNoBids),
		errors.Is(err, market.ErrNotFixedPrice),
		errors.Is(err, market.ErrAuctionListing),
		errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &pendingErr):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &submitErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		a.logger.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func tokenFromQuery(w http.ResponseWriter, r *http.Request) (domain.Token, bool) {
	q := r.URL.Query()
	token := domain.Token{AssetCode: q.Get("assetCode"), Issuer: q.Get("issuer")}
	if token.AssetCode == "" || token.Issuer == "" {
		writeError(w, http.StatusBadRequest, "assetCode and issuer query parameters are required")
		return domain.Token{}, false
	}
	return token, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
