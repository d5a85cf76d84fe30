package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

const discoveryPath = "/.well-known/oauth-authorization-server"

// stateClaims bind an OAuth state parameter to one session and server.
type stateClaims struct {
	SessionID string `json:"sid"`
	ServerID  string `json:"srv"`
	jwt.RegisteredClaims
}

func (h *Hub) signState(sessionID, serverID string) (string, error) {
	now := h.cfg.Now()
	claims := stateClaims{
		SessionID: sessionID,
		ServerID:  serverID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.cfg.StateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.cfg.StateSecret)
}

func (h *Hub) parseState(raw string) (*stateClaims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing", ErrInvalidState)
	}
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return h.cfg.StateSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(h.cfg.Now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.SessionID == "" || claims.ServerID == "" {
		return nil, fmt.Errorf("%w: incomplete claims", ErrInvalidState)
	}
	return claims, nil
}

// oauthContext makes the oauth2 package use the hub's HTTP client.
func (h *Hub) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, h.cfg.HTTPClient)
}

type authServerMetadata struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

// oauthConfig builds the client config for a server. Endpoints come from RFC
// 8414 metadata on the server's origin, or /authorize and /token when the
// metadata is unavailable.
func (h *Hub) oauthConfig(ctx context.Context, serverURL *url.URL, sessionID string) *oauth2.Config {
	origin := serverURL.Scheme + "://" + serverURL.Host
	endpoint := oauth2.Endpoint{
		AuthURL:   origin + "/authorize",
		TokenURL:  origin + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
	if meta, err := h.discover(ctx, origin); err != nil {
		h.logger.DebugContext(ctx, "oauth metadata discovery failed", "origin", origin, "error", err)
	} else {
		if meta.AuthorizationEndpoint != "" {
			endpoint.AuthURL = meta.AuthorizationEndpoint
		}
		if meta.TokenEndpoint != "" {
			endpoint.TokenURL = meta.TokenEndpoint
		}
	}
	return &oauth2.Config{
		ClientID:    h.cfg.ClientName,
		Endpoint:    endpoint,
		RedirectURL: h.CallbackURL(sessionID),
	}
}

func (h *Hub) discover(ctx context.Context, origin string) (*authServerMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+discoveryPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	var meta authServerMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, err
	}
	if meta.AuthorizationEndpoint == "" && meta.TokenEndpoint == "" {
		return nil, errors.New("metadata has no endpoints")
	}
	return &meta, nil
}
