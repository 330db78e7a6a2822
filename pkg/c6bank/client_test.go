package c6bank

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/oauth2/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "csecret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-c6","token_type":"Bearer","expires_in":300}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	token, err := client.Authenticate(context.Background(), Credentials{ClientID: "cid", ClientSecret: "csecret"})

	require.NoError(t, err)
	assert.Equal(t, "tok-c6", token)
}

func TestAuthenticate_Rejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"access_denied"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.Authenticate(context.Background(), Credentials{ClientID: "bad", ClientSecret: "bad"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestListOffers_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bank/benefit-card/offers", r.URL.Path)
		assert.Equal(t, "11111111111", r.URL.Query().Get("document"))
		assert.Equal(t, "Bearer tok-c6", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"offers":[{"product":"INSS_CARD","description":"Cartão benefício INSS","limit":2500.00,"monthly_rate":2.59}]}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	offers, err := client.ListOffers(context.Background(), "tok-c6", "11111111111")

	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "INSS_CARD", offers[0].Product)
	assert.InDelta(t, 2500.00, offers[0].Limit, 0.001)
}

func TestSimulateCard_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bank/benefit-card/simulation", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"document":"11111111111","limit":1800.00,"margin":90.00,"message":"ok"}`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	sim, err := client.SimulateCard(context.Background(), "tok-c6", "11111111111")

	require.NoError(t, err)
	assert.InDelta(t, 1800.00, sim.Limit, 0.001)
	assert.InDelta(t, 90.00, sim.Margin, 0.001)
}

func TestSimulateCard_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`internal error`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.SimulateCard(context.Background(), "tok-c6", "22222222222")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestListOffers_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	client := NewClient(WithBaseURL(srv.URL))
	_, err := client.ListOffers(context.Background(), "tok-c6", "33333333333")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
