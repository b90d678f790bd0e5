package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/wabridge/pkg/logging"
)

func TestComplete(t *testing.T) {
	var gotAuth string
	var gotBody completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  We open at 9am.  "}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logging.New("error"))
	reply, err := c.Complete(context.Background(), Settings{
		ProviderKey:  "sk-test",
		Model:        "gpt-4o",
		SystemPrompt: "answer briefly",
	}, "when do you open?")
	require.NoError(t, err)

	assert.Equal(t, "We open at 9am.", reply)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4o", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, ChatMessage{Role: ChatRoleSystem, Content: "answer briefly"}, gotBody.Messages[0])
	assert.Equal(t, ChatMessage{Role: ChatRoleUser, Content: "when do you open?"}, gotBody.Messages[1])
}

func TestCompleteWithoutSystemPrompt(t *testing.T) {
	var gotBody completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logging.New("error"))
	_, err := c.Complete(context.Background(), Settings{ProviderKey: "sk-test"}, "hello")
	require.NoError(t, err)

	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, ChatRoleUser, gotBody.Messages[0].Role)
	assert.Equal(t, DefaultModel, gotBody.Model, "empty model falls back to the default")
}

func TestCompleteWithoutProviderKeyFails(t *testing.T) {
	c := NewClient("http://unused.invalid", time.Second, logging.New("error"))
	_, err := c.Complete(context.Background(), Settings{}, "hello")
	assert.Error(t, err)
}

func TestCompleteSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logging.New("error"))
	_, err := c.Complete(context.Background(), Settings{ProviderKey: "sk-bad"}, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCompleteRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logging.New("error"))
	_, err := c.Complete(context.Background(), Settings{ProviderKey: "sk-test"}, "hello")
	assert.Error(t, err)
}
