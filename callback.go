package deskauth

import (
	"net/url"
)

// CallbackKind tags the variant a parsed deep-link callback resolved to.
type CallbackKind int

const (
	// CallbackUnknown carries none of the recognized parameters.
	CallbackUnknown CallbackKind = iota
	// CallbackToken carries a direct identity token; no exchange needed.
	CallbackToken
	// CallbackCode carries an authorization code for the PKCE exchange.
	CallbackCode
	// CallbackError carries a provider error and no usable token or code.
	CallbackError
)

// Callback is a parsed deep-link authorization response. It is transient:
// it exists only for the duration of one dispatch cycle.
type Callback struct {
	Raw       string
	Kind      CallbackKind
	Token     string
	SessionID string
	Code      string
	State     string
	ErrorMsg  string
}

// Providers differ in the parameter names they use for the identity token
// and created session.
var (
	tokenParams   = []string{"clerk_token", "token", "jwt"}
	sessionParams = []string{"session_id", "created_session_id"}
	errorParams   = []string{"error", "error_description"}
)

// ParseCallback parses a deep-link URI into its tagged variant. Parameters
// are read from the query string and, when absent there, from the fragment.
func ParseCallback(raw string) (Callback, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Callback{}, err
	}

	query := u.Query()
	frag, fragErr := url.ParseQuery(u.Fragment)
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := query.Get(k); v != "" {
				return v
			}
		}
		if fragErr == nil {
			for _, k := range keys {
				if v := frag.Get(k); v != "" {
					return v
				}
			}
		}
		return ""
	}

	cb := Callback{
		Raw:       raw,
		Token:     get(tokenParams...),
		SessionID: get(sessionParams...),
		Code:      get("code"),
		State:     get("state"),
		ErrorMsg:  get(errorParams...),
	}

	switch {
	case cb.Token != "":
		cb.Kind = CallbackToken
	case cb.Code != "":
		cb.Kind = CallbackCode
	case cb.ErrorMsg != "":
		cb.Kind = CallbackError
	default:
		cb.Kind = CallbackUnknown
	}
	return cb, nil
}

// isAuthCallback reports whether a URI addresses the auth callback surface
// (authority "auth", path "callback"). Other deep links are none of the
// flow's business.
func isAuthCallback(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host == "auth" && (u.Path == "/callback" || u.Path == "callback" || u.Opaque == "auth/callback")
}
