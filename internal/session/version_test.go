package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPVersionSourceLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"major":2,"minor":3000,"patch":1023223821}`))
	}))
	defer srv.Close()

	v, err := NewHTTPVersionSource(srv.URL).Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 2, Minor: 3000, Patch: 1023223821}, v)
	assert.Equal(t, "2.3000.1023223821", v.String())
}

func TestHTTPVersionSourceRejectsEmptyVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewHTTPVersionSource(srv.URL).Latest(context.Background())
	assert.Error(t, err)
}

func TestHTTPVersionSourceRejectsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPVersionSource(srv.URL).Latest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
