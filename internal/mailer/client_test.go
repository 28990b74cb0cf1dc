package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		From:    "newsletter@partei.example.org",
		ReplyTo: "vorstand@partei.example.org",
	})
	require.NoError(t, err)
	return client, server
}

func TestNewRequiresConfiguration(t *testing.T) {
	_, err := New(Config{APIKey: "k", From: "f@example.org"})
	require.ErrorIs(t, err, ErrMissingBaseURL)

	_, err = New(Config{BaseURL: "https://mail.example.org", From: "f@example.org"})
	require.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(Config{BaseURL: "https://mail.example.org", APIKey: "k"})
	require.ErrorIs(t, err, ErrMissingSender)
}

func TestSendPostsMessageWithAuthorization(t *testing.T) {
	var received Message
	var authHeader string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, sendPath, r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.Send(context.Background(), "mitglied@example.org", "Willkommen", "<p>Hallo</p>")
	require.NoError(t, err)
	require.Equal(t, "Bearer test-key", authHeader)
	require.Equal(t, "mitglied@example.org", received.To)
	require.Equal(t, "Willkommen", received.Subject)
	require.Equal(t, "newsletter@partei.example.org", received.From)
	require.Equal(t, "vorstand@partei.example.org", received.ReplyTo)
}

func TestSendReportsRejectedStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid sender", http.StatusUnprocessableEntity)
	}))

	err := client.Send(context.Background(), "mitglied@example.org", "Betreff", "<p>Text</p>")
	require.ErrorContains(t, err, "unexpected status 422")
}

func TestSendBatchReportsPerRecipientOutcomes(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, batchPath, r.URL.Path)

		var request batchRequestPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		require.Len(t, request.Messages, 3)

		response := batchResponsePayload{Results: []batchResultPayload{
			{To: "ok@example.org", Status: "sent"},
			{To: "Queued@example.org", Status: "queued"},
			{To: "bounce@example.org", Status: "failed", Error: "mailbox full"},
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))

	results := client.SendBatch(context.Background(),
		[]string{"ok@example.org", "queued@example.org", "bounce@example.org"},
		"Newsletter", "<p>Inhalt</p>")
	require.Len(t, results, 3)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err, "status matching must ignore case")
	require.ErrorContains(t, results[2].Err, "mailbox full")
	require.Equal(t, "bounce@example.org", results[2].Recipient)
}

func TestSendBatchFlagsMissingRecipients(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := batchResponsePayload{Results: []batchResultPayload{
			{To: "ok@example.org", Status: "sent"},
		}}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(response))
	}))

	results := client.SendBatch(context.Background(),
		[]string{"ok@example.org", "vergessen@example.org"},
		"Newsletter", "<p>Inhalt</p>")
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.ErrorContains(t, results[1].Err, "missing from batch response")
}

func TestSendBatchFailsAllRecipientsOnTransportError(t *testing.T) {
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close()

	results := client.SendBatch(context.Background(),
		[]string{"a@example.org", "b@example.org"},
		"Newsletter", "<p>Inhalt</p>")
	require.Len(t, results, 2)
	for _, result := range results {
		require.ErrorContains(t, result.Err, "request failed")
	}
}

func TestSendBatchFailsAllRecipientsOnRejectedStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	results := client.SendBatch(context.Background(),
		[]string{"a@example.org", "b@example.org"},
		"Newsletter", "<p>Inhalt</p>")
	require.Len(t, results, 2)
	for _, result := range results {
		require.ErrorContains(t, result.Err, "unexpected status 429")
	}
}

func TestSendBatchWithoutRecipientsSkipsAPICall(t *testing.T) {
	called := false
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	results := client.SendBatch(context.Background(), nil, "Newsletter", "<p>Inhalt</p>")
	require.Empty(t, results)
	require.False(t, called)
}
