// SPDX-License-Identifier: MIT

// Package session implements the stateless session token carried in the URL.
// The token is the only authentication artifact: it decodes to the caller's
// full configuration, so no server-side session store exists.
package session

// StreamingProvider names the debrid service a user has configured, plus the
// credential material the resolver needs. Exactly one of Token or Username is
// normally set, depending on the service's auth model.
type StreamingProvider struct {
	Service                 string `json:"service"`
	Token                   string `json:"token,omitempty"`
	Username                string `json:"username,omitempty"`
	Password                string `json:"password,omitempty"`
	EnableWatchlistCatalogs bool   `json:"enable_watchlist_catalogs,omitempty"`
}

// AccountFingerprint returns the credential used to distinguish provider
// accounts for rate-limit bucketing. Never use this for authentication.
func (p *StreamingProvider) AccountFingerprint() string {
	if p == nil {
		return ""
	}
	if p.Token != "" {
		return p.Token
	}
	return p.Username
}

// UserConfig is the decoded session value. It is immutable once decoded and is
// reconstructed fresh from the token on every request.
type UserConfig struct {
	APIPassword       string             `json:"api_password,omitempty"`
	StreamingProvider *StreamingProvider `json:"streaming_provider,omitempty"`
}
