package deskauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchanger_SendsPKCEForm(t *testing.T) {
	var form map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"client_id":     r.PostForm.Get("client_id"),
			"code":          r.PostForm.Get("code"),
			"code_verifier": r.PostForm.Get("code_verifier"),
			"redirect_uri":  r.PostForm.Get("redirect_uri"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id_token":"idt","access_token":"at","refresh_token":"rt","token_type":"bearer"}`))
	}))
	defer srv.Close()

	ex := NewExchanger(srv.URL, "client-123", nil)
	ts, err := ex.Exchange(context.Background(), "code-abc", "verifier-xyz", "myapp://auth/callback")
	require.NoError(t, err)

	assert.Equal(t, "authorization_code", form["grant_type"])
	assert.Equal(t, "client-123", form["client_id"])
	assert.Equal(t, "code-abc", form["code"])
	assert.Equal(t, "verifier-xyz", form["code_verifier"])
	assert.Equal(t, "myapp://auth/callback", form["redirect_uri"])

	assert.Equal(t, "idt", ts.IDToken)
	assert.Equal(t, "at", ts.AccessToken)
	assert.Equal(t, "rt", ts.RefreshToken)
}

func TestExchanger_NoIDTokenInResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at","token_type":"bearer"}`))
	}))
	defer srv.Close()

	ts, err := NewExchanger(srv.URL, "c", nil).Exchange(context.Background(), "code", "v", "r")
	require.NoError(t, err)
	assert.Empty(t, ts.IDToken)
	assert.Equal(t, "at", ts.AccessToken)
}

func TestExchanger_ProviderErrorPayloadPreserved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code expired"}`))
	}))
	defer srv.Close()

	_, err := NewExchanger(srv.URL, "c", nil).Exchange(context.Background(), "code", "v", "r")
	require.Error(t, err)

	var xerr *ExchangeError
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, http.StatusBadRequest, xerr.StatusCode)
	assert.Contains(t, string(xerr.Body), "invalid_grant")
	assert.Contains(t, string(xerr.Body), "code expired")
}

func TestExchanger_CodeIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := NewExchanger(srv.URL, "c", nil).Exchange(context.Background(), "code", "v", "r")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "single-use authorization codes must never be retried")
}
