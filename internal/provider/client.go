package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"golang.org/x/oauth2"
)

const maxMediaBytes = 512 << 20

// Deps are the collaborators shared by every adapter built by a Factory.
type Deps struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Clock      Clock
}

// client is the HTTP, logging and credential helper composed into every
// adapter. It holds only the channel the adapter was built for.
type client struct {
	name       Name
	http       *http.Client
	logger     *slog.Logger
	clock      Clock
	channel    *models.Channel
	secret     string
	publishing config.Publishing
}

func newClient(name Name, ch *models.Channel, cfg config.Config, deps Deps) client {
	logger := deps.Logger.With("provider", string(name))
	if ch != nil {
		logger = logger.With("channel_id", ch.ID)
	}
	return client{
		name:       name,
		http:       deps.HTTPClient,
		logger:     logger,
		clock:      deps.Clock,
		channel:    ch,
		secret:     cfg.SecretKey,
		publishing: cfg.Publishing,
	}
}

func (c *client) log(msg string, args ...any) {
	c.logger.Info(msg, args...)
}

// logError records a failed stage and returns err unchanged.
func (c *client) logError(stage string, err error) error {
	if err == nil {
		return nil
	}
	attrs := []any{"stage", stage, "error", err.Error()}
	if pe, ok := AsError(err); ok {
		attrs = append(attrs, "kind", string(pe.Kind), "code", pe.Code)
	}
	c.logger.Error("provider operation failed", attrs...)
	return err
}

func (c *client) imagePoll() PollConfig {
	return PollConfig{Interval: c.publishing.ImagePollInterval, Timeout: c.publishing.ImagePollTimeout}
}

func (c *client) videoPoll() PollConfig {
	return PollConfig{Interval: c.publishing.VideoPollInterval, Timeout: c.publishing.VideoPollTimeout}
}

// accessToken decrypts the channel's stored access token.
func (c *client) accessToken() (string, error) {
	if c.channel == nil || c.channel.AccessToken == "" {
		return "", &Error{
			Kind:     KindOAuth,
			Provider: c.name,
			Op:       "access_token",
			Code:     "channel_not_connected",
			Message:  "channel has no stored credentials; connect the account first",
		}
	}
	token, err := utils.Decrypt(c.channel.AccessToken, []byte(c.secret))
	if err != nil {
		return "", &Error{
			Kind:     KindOAuth,
			Provider: c.name,
			Op:       "access_token",
			Code:     "token_unreadable",
			Message:  "stored access token could not be decrypted; reconnect the channel",
			Err:      err,
		}
	}
	return token, nil
}

// refreshToken decrypts the stored refresh token, "" when there is none.
func (c *client) refreshToken() (string, error) {
	if c.channel == nil || c.channel.RefreshToken == "" {
		return "", nil
	}
	token, err := utils.Decrypt(c.channel.RefreshToken, []byte(c.secret))
	if err != nil {
		return "", &Error{
			Kind:     KindOAuth,
			Provider: c.name,
			Op:       "refresh_token",
			Code:     "token_unreadable",
			Message:  "stored refresh token could not be decrypted; reconnect the channel",
			Err:      err,
		}
	}
	return token, nil
}

// oauthContext makes golang.org/x/oauth2 use the adapter's HTTP client.
func (c *client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// exchangeError classifies an oauth2 token endpoint failure.
func (c *client) exchangeError(code, message string, err error) *Error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode >= 500 {
		return &Error{Kind: KindTransient, Provider: c.name, Op: "handle_callback", Code: "token_endpoint_unavailable", Message: message, Err: err}
	}
	return oauthError(c.name, code, message, err)
}

type call struct {
	method string
	url    string
	bearer string
	header map[string]string
	json   any
	form   url.Values
	raw    []byte
	rawCT  string
}

// send performs a request and decodes a JSON response into out when out is
// not nil. Non-2xx answers become classified *Error values.
func (c *client) send(ctx context.Context, op string, in call, out any) (http.Header, error) {
	var body io.Reader
	contentType := ""
	switch {
	case in.json != nil:
		b, err := json.Marshal(in.json)
		if err != nil {
			return nil, fmt.Errorf("error marshalling payload: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	case in.form != nil:
		body = strings.NewReader(in.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case in.raw != nil:
		body = bytes.NewReader(in.raw)
		contentType = in.rawCT
	}

	req, err := http.NewRequestWithContext(ctx, in.method, in.url, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if in.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+in.bearer)
	}
	for k, v := range in.header {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Provider: c.name, Op: op, Code: "network_error", Message: op + " request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Provider: c.name, Op: op, Code: "network_error", Message: "error reading response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.Header, c.statusError(op, resp.StatusCode, resp.Header, respBody)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.Header, &Error{Kind: KindPlatform, Provider: c.name, Op: op, Code: "malformed_response", Message: "error parsing response", Err: err}
		}
	}
	return resp.Header, nil
}

func (c *client) statusError(op string, status int, header http.Header, body []byte) *Error {
	e := &Error{
		Provider: c.name,
		Op:       op,
		Message:  fmt.Sprintf("%s failed with status %d", op, status),
		Err:      errors.New(upstreamMessage(body)),
	}
	switch {
	case status == http.StatusTooManyRequests:
		e.Kind, e.Code = KindTransient, "rate_limited"
		if ra := header.Get("Retry-After"); ra != "" {
			e.Message += " (retry after " + ra + ")"
		}
	case status >= 500 || status == http.StatusRequestTimeout:
		e.Kind, e.Code = KindTransient, "upstream_unavailable"
	case status == http.StatusUnauthorized:
		e.Kind, e.Code = KindOAuth, "token_invalid"
		e.Message = op + " rejected the access token; reconnect the channel"
	case status == http.StatusForbidden:
		e.Kind, e.Code = KindPlatform, "permission_denied"
	case status == http.StatusNotFound:
		e.Kind, e.Code = KindPlatform, "not_found"
	default:
		e.Kind, e.Code = KindPlatform, "upstream_rejected"
	}
	return e
}

// upstreamMessage extracts the platform's own error text from a response.
func upstreamMessage(body []byte) string {
	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err == nil {
		for _, key := range []string{"message", "detail", "error_description", "title"} {
			if s, ok := generic[key].(string); ok && s != "" {
				return s
			}
		}
		switch v := generic["error"].(type) {
		case string:
			return v
		case map[string]any:
			if s, ok := v["message"].(string); ok && s != "" {
				return s
			}
		}
		if list, ok := generic["errors"].([]any); ok && len(list) > 0 {
			if first, ok := list[0].(map[string]any); ok {
				if s, ok := first["message"].(string); ok {
					return s
				}
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 300 {
		text = text[:300] + "..."
	}
	if text == "" {
		text = "empty response"
	}
	return text
}

// openMedia starts downloading a media file referenced by the post. The
// caller closes the body.
func (c *client) openMedia(ctx context.Context, mediaURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Provider: c.name, Op: "fetch_media", Code: "media_unreachable", Message: "error downloading media " + mediaURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		kind := KindPlatform
		if resp.StatusCode >= 500 {
			kind = KindTransient
		}
		return nil, &Error{Kind: kind, Provider: c.name, Op: "fetch_media", Code: "media_unavailable",
			Message: fmt.Sprintf("media %s returned status %d", mediaURL, resp.StatusCode)}
	}
	return resp, nil
}

// fetchMedia downloads a media file into memory.
func (c *client) fetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	resp, err := c.openMedia(ctx, mediaURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", &Error{Kind: KindTransient, Provider: c.name, Op: "fetch_media", Code: "media_unreachable", Message: "error reading media " + mediaURL, Err: err}
	}
	if len(data) > maxMediaBytes {
		return nil, "", validationError(c.name, "media_too_large", "media %s exceeds %d bytes", mediaURL, maxMediaBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// tokenExpiry converts an oauth2 expiry into a duration, zero when the
// token does not expire. oauth2 stamps Expiry with the wall clock.
func (c *client) tokenExpiry(tok *oauth2.Token) time.Duration {
	if tok == nil || tok.Expiry.IsZero() {
		return 0
	}
	d := time.Until(tok.Expiry).Round(time.Second)
	if d < time.Second {
		return time.Second
	}
	return d
}

// refreshedCredentials keeps the channel identity and swaps in the new
// tokens. Platforms that do not rotate refresh tokens keep the old one.
func refreshedCredentials(ch *models.Channel, tok *oauth2.Token, expiresIn time.Duration, oldRefresh string) *Credentials {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = oldRefresh
	}
	creds := &Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresIn:    expiresIn,
	}
	if ch != nil {
		creds.PlatformUserID = ch.PlatformUserID
		creds.PlatformUsername = ch.PlatformUsername
		creds.DisplayName = ch.DisplayName
		creds.ProfileURL = ch.ProfileURL
		creds.Avatar = ch.Avatar
		creds.ProviderData = ch.ProviderData
	}
	return creds
}

// connectionFromError turns the outcome of a probe request into a
// ConnectionResult. Rejected credentials are Unreachable; anything that
// kept the probe from getting an answer is Unknown.
func connectionFromError(c *client, err error) ConnectionResult {
	if err == nil {
		c.log("connection ok")
		return ConnectionResult{Status: Reachable}
	}
	c.logError("test_connection", err)
	switch e, _ := AsError(err); {
	case e != nil && (e.Kind == KindOAuth || e.Code == "permission_denied"):
		return ConnectionResult{Status: Unreachable, Detail: err.Error()}
	default:
		return ConnectionResult{Status: Unknown, Detail: err.Error()}
	}
}
