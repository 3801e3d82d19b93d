package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "sendMessage")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	require.NoError(t, notifier.Send(context.Background(), "s1 (temperature), Average: 85.0, TOO_HIGH_AVERAGE\n"))

	assert.Equal(t, "chat", received["chat_id"])
	assert.Contains(t, received["text"], "TOO_HIGH_AVERAGE")
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	assert.Error(t, notifier.Send(context.Background(), "body"))
}

func TestSMSNotifierPostsFormPerRecipient(t *testing.T) {
	var calls []map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		calls = append(calls, map[string]string{
			"To":   r.PostForm.Get("To"),
			"From": r.PostForm.Get("From"),
			"Body": r.PostForm.Get("Body"),
		})
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer srv.Close()

	notifier := NewSMSNotifier(SMSOptions{
		AccountSID: "AC123",
		AuthToken:  "secret",
		From:       "+15550000000",
		To:         []string{"+15551111111", "+15552222222"},
		BaseURL:    srv.URL,
		Timeout:    time.Second,
	}, testLogger())

	require.NoError(t, notifier.Send(context.Background(), "hello"))
	require.Len(t, calls, 2)
	assert.Equal(t, "+15551111111", calls[0]["To"])
	assert.Equal(t, "+15552222222", calls[1]["To"])
	assert.Equal(t, "+15550000000", calls[0]["From"])
	assert.Equal(t, "hello", calls[0]["Body"])
}

func TestSMSNotifierSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 21211, "message": "invalid To number"})
	}))
	defer srv.Close()

	notifier := NewSMSNotifier(SMSOptions{AccountSID: "AC1", To: []string{"bad"}, BaseURL: srv.URL}, testLogger())
	err := notifier.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid To number"))
}

func TestSMSNotifierRequiresRecipients(t *testing.T) {
	notifier := NewSMSNotifier(SMSOptions{AccountSID: "AC1"}, testLogger())
	assert.Error(t, notifier.Send(context.Background(), "hello"))
}

func TestFanoutNotifierJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("boom")}

	fan := NewFanoutNotifier()
	fan.Add("sms", bad)
	fan.Add("telegram", ok)

	err := fan.Send(context.Background(), "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sms: boom")
	assert.Equal(t, []string{"body"}, ok.bodies, "a failing channel must not block the others")
	assert.Equal(t, 2, fan.Len())
}

type recordingNotifier struct {
	bodies []string
	err    error
}

func (r *recordingNotifier) Send(_ context.Context, body string) error {
	r.bodies = append(r.bodies, body)
	return r.err
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
