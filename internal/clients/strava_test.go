// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStravaUploadRefreshesThenUploads(t *testing.T) {
	var uploadedName, uploadedData, uploadedType string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "client-1", body["client_id"])
		assert.Equal(t, "secret-1", body["client_secret"])
		assert.Equal(t, "seed-refresh", body["refresh_token"])
		assert.Equal(t, "refresh_token", body["grant_type"])
		writeTestJSON(t, w, stravaToken{
			AccessToken:  "fresh",
			RefreshToken: "rotated-refresh",
			ExpiresAt:    time.Now().Add(6 * time.Hour).Unix(),
		})
	})
	mux.HandleFunc("POST /api/v3/uploads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer fresh", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		uploadedType = r.FormValue("data_type")
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		uploadedName = header.Filename
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		uploadedData = string(data)
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	creds := newMemCreds()
	client := NewStravaClient(srv.URL+"/api/v3", "client-1", "secret-1", "seed-refresh", "", 5*time.Second, creds)

	err := client.Upload(context.Background(), []byte("<tcx/>"), "Morning Ride.tcx")
	require.NoError(t, err)
	assert.Equal(t, "Morning Ride.tcx", uploadedName)
	assert.Equal(t, "<tcx/>", uploadedData)
	assert.Equal(t, "tcx", uploadedType)

	// The rotated refresh token must survive restarts.
	var stored stravaToken
	require.NoError(t, creds.Credential(context.Background(), stravaService, &stored))
	assert.Equal(t, "fresh", stored.AccessToken)
	assert.Equal(t, "rotated-refresh", stored.RefreshToken)
}

func TestStravaUploadRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/uploads", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"duplicate of activity 123"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewStravaClient(srv.URL+"/api/v3", "client-1", "secret-1", "seed-refresh", "valid", 5*time.Second, nil)
	client.token.ExpiresAt = time.Now().Add(6 * time.Hour).Unix()

	err := client.Upload(context.Background(), []byte("<tcx/>"), "ride.tcx")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.Status)
	assert.Contains(t, rejected.Body, "duplicate")
}

func TestStravaUploadWithoutRefreshToken(t *testing.T) {
	client := NewStravaClient("http://unused/api/v3", "client-1", "secret-1", "", "", 5*time.Second, nil)

	err := client.Upload(context.Background(), []byte("<tcx/>"), "ride.tcx")
	var authErr *AuthExpiredError
	require.ErrorAs(t, err, &authErr)
}

func TestStravaLoadsStoredToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v3/uploads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer stored-access", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	creds := newMemCreds()
	require.NoError(t, creds.SetCredential(context.Background(), stravaService, stravaToken{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(6 * time.Hour).Unix(),
	}))

	// The configured seed token is ignored once the store holds a newer one.
	client := NewStravaClient(srv.URL+"/api/v3", "client-1", "secret-1", "seed-refresh", "", 5*time.Second, creds)
	require.NoError(t, client.Upload(context.Background(), []byte("<tcx/>"), "ride.tcx"))
}

func TestStravaTokenURL(t *testing.T) {
	client := NewStravaClient("https://www.strava.com/api/v3", "id", "secret", "", "", time.Second, nil)
	assert.Equal(t, "https://www.strava.com/oauth/token", client.tokenURL())
}
