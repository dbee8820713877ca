package calendar

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"golang.org/x/oauth2"

	accountsrepo "slotbook/internal/accounts/repository"
	httputil "slotbook/pkg/http"
	"slotbook/pkg/logger"
	"slotbook/pkg/middleware"
	"slotbook/pkg/model"
	"slotbook/pkg/session"
)

// stateTTL bounds how long an OAuth round trip may take. The state parameter
// is a sealed owner token, so the callback can recover the owner without a
// session header.
const stateTTL = 10 * time.Minute

type ConnectHandler struct {
	oauth    *oauth2.Config
	accounts accountsrepo.AccountRepository
	sealer   *session.Sealer
	log      *logger.Logger
}

func NewConnectHandler(oauth *oauth2.Config, accounts accountsrepo.AccountRepository, sealer *session.Sealer, log *logger.Logger) *ConnectHandler {
	return &ConnectHandler{
		oauth:    oauth,
		accounts: accounts,
		sealer:   sealer,
		log:      log,
	}
}

// Connect hands the caller the Google consent URL. Offline access is
// requested so a refresh token comes back with the first grant.
func (h *ConnectHandler) Connect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ownerID := middleware.OwnerIDFrom(r.Context())

	state, err := h.sealer.Seal(ownerID, time.Now().Add(stateTTL))
	if err != nil {
		h.log.Error("failed to seal OAuth state", "owner_id", ownerID, "error", err)
		if writeErr := httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
			Error: "Failed to start calendar connection",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Connect", "error", writeErr)
		}
		return
	}

	url := h.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	if err := httputil.WriteSuccess(w, map[string]string{"auth_url": url}); err != nil {
		h.log.Error("failed to write success response", "handler", "Connect", "error", err)
	}
}

// Callback receives the Google redirect. No session header is present here;
// the owner comes out of the sealed state parameter.
func (h *ConnectHandler) Callback(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Calendar connection was denied: " + errParam,
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Callback", "error", writeErr)
		}
		return
	}

	ownerID, err := h.sealer.Open(query.Get("state"), time.Now())
	if err != nil {
		h.log.Warn("OAuth callback with bad state", "error", err)
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid or expired state parameter",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Callback", "error", writeErr)
		}
		return
	}

	code := query.Get("code")
	if code == "" {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Missing authorization code",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Callback", "error", writeErr)
		}
		return
	}

	token, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.log.Error("OAuth code exchange failed", "owner_id", ownerID, "error", err)
		if writeErr := httputil.WriteJSON(w, http.StatusBadGateway, httputil.ErrorResponse{
			Error: "Failed to exchange authorization code",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Callback", "error", writeErr)
		}
		return
	}

	expiry := token.Expiry
	account := &model.CalendarAccount{
		OwnerID:      ownerID,
		Provider:     model.ProviderGoogle,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    &expiry,
	}
	if err := h.accounts.Upsert(r.Context(), account); err != nil {
		h.log.Error("failed to store calendar account", "owner_id", ownerID, "error", err)
		if writeErr := httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
			Error: "Failed to store calendar credentials",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Callback", "error", writeErr)
		}
		return
	}

	h.log.Info("Calendar account connected", "owner_id", ownerID, "provider", model.ProviderGoogle)
	if err := httputil.WriteSuccess(w, map[string]string{"status": "connected"}); err != nil {
		h.log.Error("failed to write success response", "handler", "Callback", "error", err)
	}
}

func (h *ConnectHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ownerID := middleware.OwnerIDFrom(r.Context())

	connected, err := h.accounts.IsConnected(r.Context(), ownerID)
	if err != nil {
		h.log.Error("failed to check calendar connection", "owner_id", ownerID, "error", err)
		if writeErr := httputil.WriteJSON(w, http.StatusInternalServerError, httputil.ErrorResponse{
			Error: "Failed to check calendar connection",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Status", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, map[string]bool{"connected": connected}); err != nil {
		h.log.Error("failed to write success response", "handler", "Status", "error", err)
	}
}

// RegisterRoutes wires the authenticated surface. The callback is registered
// separately because it runs without session middleware.
func (h *ConnectHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/calendar/google/connect", h.Connect)
	router.GET("/api/v1/calendar/google/status", h.Status)
}

// CallbackHandler exposes only the public callback route.
type CallbackHandler struct {
	connect *ConnectHandler
}

func NewCallbackHandler(connect *ConnectHandler) *CallbackHandler {
	return &CallbackHandler{connect: connect}
}

func (h *CallbackHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/api/v1/calendar/google/callback", h.connect.Callback)
}
