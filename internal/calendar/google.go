package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	accountsrepo "slotbook/internal/accounts/repository"
	"slotbook/pkg/config"
	"slotbook/pkg/model"
	"slotbook/pkg/timerange"
)

const (
	defaultFreeBusyURL = "https://www.googleapis.com/calendar/v3/freeBusy"
	scopeCalendarRead  = "https://www.googleapis.com/auth/calendar.readonly"
)

type googleOracle struct {
	cfg      *config.Config
	accounts accountsrepo.AccountRepository
	oauth    *oauth2.Config
	client   *http.Client

	// freeBusyURL is overridable in tests.
	freeBusyURL string
}

// NewGoogleOracle queries the Google Calendar free/busy endpoint for the
// owner's primary calendar. Tokens are refreshed through oauth2 and written
// back when they rotate.
func NewGoogleOracle(cfg *config.Config, accounts accountsrepo.AccountRepository) Oracle {
	return &googleOracle{
		cfg:      cfg,
		accounts: accounts,
		oauth:    NewOAuthConfig(cfg),
		client: &http.Client{
			Timeout: cfg.OracleTimeout,
		},
		freeBusyURL: defaultFreeBusyURL,
	}
}

// NewOAuthConfig builds the shared OAuth client configuration used by both
// the oracle and the connect/callback handlers.
func NewOAuthConfig(cfg *config.Config) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes:       []string{scopeCalendarRead},
		Endpoint:     google.Endpoint,
	}
}

type freeBusyRequest struct {
	TimeMin string             `json:"timeMin"`
	TimeMax string             `json:"timeMax"`
	Items   []freeBusyCalendar `json:"items"`
}

type freeBusyCalendar struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start time.Time `json:"start"`
			End   time.Time `json:"end"`
		} `json:"busy"`
	} `json:"calendars"`
}

func (o *googleOracle) QueryBusy(ctx context.Context, ownerID string, rng timerange.TimeRange) Answer {
	if !o.cfg.GoogleConfigured() {
		return Unavailable("calendar integration not configured")
	}

	account, err := o.accounts.Get(ctx, ownerID)
	if err != nil {
		if errors.Is(err, accountsrepo.ErrNotConnected) {
			return Unavailable("no calendar account connected")
		}
		o.cfg.Log.Error("Calendar credential lookup failed", "owner_id", ownerID, "error", err)
		return Unavailable("credential lookup failed")
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.OracleTimeout)
	defer cancel()

	token, err := o.freshToken(ctx, account)
	if err != nil {
		o.cfg.Log.Warn("Calendar token refresh failed", "owner_id", ownerID, "error", err)
		return Unavailable("token refresh failed")
	}

	busy, err := o.queryFreeBusy(ctx, token, rng)
	if err != nil {
		o.cfg.Log.Warn("Calendar free/busy query failed", "owner_id", ownerID, "error", err)
		return Unavailable(err.Error())
	}

	if busy {
		return Busy()
	}
	return Free()
}

// freshToken refreshes the stored token when expired and persists a rotated
// token best-effort; a failed write-back does not fail the query.
func (o *googleOracle) freshToken(ctx context.Context, account *model.CalendarAccount) (*oauth2.Token, error) {
	stored := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
	}
	if account.ExpiresAt != nil {
		stored.Expiry = *account.ExpiresAt
	}

	token, err := o.oauth.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, err
	}

	if token.AccessToken != account.AccessToken {
		account.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			account.RefreshToken = token.RefreshToken
		}
		expiry := token.Expiry
		account.ExpiresAt = &expiry

		if err := o.accounts.Upsert(ctx, account); err != nil {
			o.cfg.Log.Warn("Failed to persist rotated calendar token",
				"owner_id", account.OwnerID,
				"error", err,
			)
		}
	}

	return token, nil
}

func (o *googleOracle) queryFreeBusy(ctx context.Context, token *oauth2.Token, rng timerange.TimeRange) (bool, error) {
	body, err := json.Marshal(freeBusyRequest{
		TimeMin: rng.Start.Format(time.RFC3339),
		TimeMax: rng.End.Format(time.RFC3339),
		Items:   []freeBusyCalendar{{ID: "primary"}},
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode free/busy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.freeBusyURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build free/busy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := o.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("free/busy request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("free/busy returned status %d", resp.StatusCode)
	}

	var parsed freeBusyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("failed to decode free/busy response: %w", err)
	}

	for _, cal := range parsed.Calendars {
		if len(cal.Busy) > 0 {
			return true, nil
		}
	}
	return false, nil
}
