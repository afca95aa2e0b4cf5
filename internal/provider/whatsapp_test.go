package provider

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppBroadcast(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.URL.Path != "/v21.0/phone-1/messages" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		to := r.FormValue("to")
		if to == "222" {
			writeGraphError(w, http.StatusBadRequest, 131030, "Recipient phone number not in allowed list")
			return
		}
		assert.Equal(t, "image", r.FormValue("type"))
		sent = append(sent, to)
		writeJSON(w, http.StatusOK, map[string]any{"messages": []map[string]string{{"id": "wamid." + to}}})
	}))

	ok := env.provider(t, WhatsApp, testChannel(t, WhatsApp, map[string]string{"phoneNumberId": "phone-1", "recipients": "111, 333"}))
	res, err := ok.Publish(context.Background(), &PublishRequest{
		Content:   "Sale today",
		MediaURLs: []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.111", res.PlatformPostID)
	assert.Empty(t, res.PlatformURL)
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, res.MediaURLs)
	assert.Equal(t, []string{"111", "333"}, sent)

	partial := env.provider(t, WhatsApp, testChannel(t, WhatsApp, map[string]string{"phoneNumberId": "phone-1", "recipients": "111,222,333"}))
	_, err = partial.Publish(context.Background(), &PublishRequest{Content: "x", MediaURLs: []string{"https://cdn.example.com/a.jpg"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient 2 of 3")
	assert.Contains(t, err.Error(), "after 1 delivered")
	assert.Contains(t, err.Error(), "not in allowed list")
}

func TestWhatsAppPartialDeliveryIsNotRetryable(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
		down bool
	)
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		mu.Lock()
		defer mu.Unlock()
		if down || len(sent) > 0 {
			writeGraphError(w, http.StatusInternalServerError, 2, "Service temporarily unavailable")
			return
		}
		sent = append(sent, r.FormValue("to"))
		writeJSON(w, http.StatusOK, map[string]any{"messages": []map[string]string{{"id": "wamid.1"}}})
	}))

	p := env.provider(t, WhatsApp, testChannel(t, WhatsApp, map[string]string{"phoneNumberId": "phone-1", "recipients": "111,222,333"}))
	_, err := p.Publish(context.Background(), &PublishRequest{Content: "Sale today"})
	require.Error(t, err)
	assert.Equal(t, []string{"111"}, sent)
	assert.False(t, IsRetryable(err))
	assert.ErrorIs(t, err, ErrPlatform)
	pe, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "partial_delivery", pe.Code)

	// nothing delivered yet, so the outage stays retryable
	mu.Lock()
	down = true
	mu.Unlock()
	_, err = p.Publish(context.Background(), &PublishRequest{Content: "Sale today"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestWhatsAppUnsupported(t *testing.T) {
	env := newTestEnv(t, nil)
	p := env.provider(t, WhatsApp, testChannel(t, WhatsApp, nil))

	_, err := p.RefreshAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
	assert.ErrorIs(t, p.UpdatePost(context.Background(), "wamid.1", "x"), ErrUnsupportedOperation)
	assert.ErrorIs(t, p.DeletePost(context.Background(), "wamid.1"), ErrUnsupportedOperation)

	a, err := p.PostAnalytics(context.Background(), "wamid.1")
	assert.NoError(t, err)
	assert.Nil(t, a)
	assert.Zero(t, env.calls())
}

func TestWhatsAppHandleCallback(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v21.0/oauth/access_token":
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "short", "token_type": "bearer"})
		case r.Method == http.MethodGet && r.URL.Path == "/v21.0/oauth/access_token":
			writeJSON(w, http.StatusOK, map[string]any{"access_token": "long", "token_type": "bearer", "expires_in": 5184000})
		case r.URL.Path == "/v21.0/debug_token":
			assert.Equal(t, "whatsapp-client|whatsapp-secret", r.FormValue("access_token"))
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"is_valid": true,
				"granular_scopes": []map[string]any{
					{"scope": "whatsapp_business_messaging", "target_ids": []string{"waba-1"}},
					{"scope": "whatsapp_business_management", "target_ids": []string{"waba-1"}},
				},
			}})
		case r.URL.Path == "/v21.0/waba-1/phone_numbers":
			writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]any{
				{"id": "phone-1", "display_phone_number": "+1 555-000-1234", "verified_name": "Shop"},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	p := env.provider(t, WhatsApp, nil)

	creds, err := p.HandleCallback(context.Background(), "code", "state")
	require.NoError(t, err)
	assert.Equal(t, "long", creds.AccessToken)
	assert.Equal(t, "phone-1", creds.PlatformUserID)
	assert.Equal(t, "https://wa.me/15550001234", creds.ProfileURL)
	assert.Equal(t, "waba-1", creds.ProviderData["wabaId"])
	assert.Greater(t, creds.ExpiresIn.Hours(), 24.0)
}
