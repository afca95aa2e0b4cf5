package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huandu/facebook"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/transfer"
	"golang.org/x/oauth2"
)

// graphClient is the Graph API plumbing shared by the Facebook, Instagram
// and WhatsApp adapters.
type graphClient struct {
	client
	app     *facebook.App
	oauth   *oauth2.Config
	version string
}

func newGraphClient(c client, app config.OAuthApp, version string, scopes []string) graphClient {
	fbApp := facebook.New(app.ClientID, app.ClientSecret)
	fbApp.RedirectUri = app.RedirectURI
	return graphClient{
		client: c,
		app:    fbApp,
		oauth: &oauth2.Config{
			ClientID:     app.ClientID,
			ClientSecret: app.ClientSecret,
			RedirectURL:  app.RedirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   fmt.Sprintf("https://www.facebook.com/%s/dialog/oauth", version),
				TokenURL:  fmt.Sprintf("https://graph.facebook.com/%s/oauth/access_token", version),
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		version: version,
	}
}

// session binds a Graph session to ctx so cancellation and deadlines reach
// every request made through it.
func (g *graphClient) session(ctx context.Context, token string) *facebook.Session {
	s := g.app.Session(token)
	s.HttpClient = g.http
	s.Version = g.version
	return s.WithContext(ctx)
}

func (g *graphClient) graphConfig(limits Limits) Config {
	return Config{
		Name:        g.name,
		AuthURL:     g.oauth.Endpoint.AuthURL,
		TokenURL:    g.oauth.Endpoint.TokenURL,
		APIBaseURL:  "https://graph.facebook.com/" + g.version,
		Scopes:      g.oauth.Scopes,
		ClientID:    g.oauth.ClientID,
		CallbackURL: g.oauth.RedirectURL,
		Limits:      limits,
	}
}

func (g *graphClient) authorizationURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("response_type", "code"))
}

// graphError classifies a Graph API failure.
func (g *graphClient) graphError(op string, err error) *Error {
	var fe *facebook.Error
	if !errors.As(err, &fe) {
		return &Error{Kind: KindTransient, Provider: g.name, Op: op, Code: "network_error", Message: op + " request failed", Err: err}
	}

	e := &Error{Provider: g.name, Op: op, Message: op + " failed", Err: errors.New(fe.Message)}
	switch {
	case fe.Code == 1 || fe.Code == 2 || fe.Code == 4 || fe.Code == 17 || fe.Code == 32 || fe.Code == 341 || fe.Code == 613:
		e.Kind, e.Code = KindTransient, "rate_limited"
	case fe.Code == 190 || fe.Code == 102:
		e.Kind, e.Code = KindOAuth, "token_invalid"
		e.Message = op + " rejected the access token; reconnect the channel"
	case isGraphPermissionError(fe):
		e.Kind, e.Code = KindPlatform, "permission_denied"
	default:
		e.Kind, e.Code = KindPlatform, "upstream_rejected"
	}
	return e
}

func isGraphPermissionError(fe *facebook.Error) bool {
	return fe.Code == 10 || (fe.Code >= 200 && fe.Code < 300)
}

// isPermissionDenied reports whether err is a Graph permission failure.
func isPermissionDenied(err error) bool {
	var fe *facebook.Error
	return errors.As(err, &fe) && isGraphPermissionError(fe)
}

// isNotYetAvailable reports the Graph answer for a resource that exists but
// cannot be queried yet.
func isNotYetAvailable(err error) bool {
	var fe *facebook.Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Code == 9007 || (fe.Code == 100 && fe.ErrorSubcode == 33)
}

// exchangeCode runs the OAuth code exchange and then trades the short-lived
// user token for a long-lived one. Each step fails with its own code.
func (g *graphClient) exchangeCode(ctx context.Context, code string) (string, time.Duration, error) {
	if code == "" {
		return "", 0, g.logError("exchange_code", oauthError(g.name, "missing_code", "authorization code is empty", nil))
	}

	short, err := g.oauth.Exchange(g.oauthContext(ctx), code)
	if err != nil {
		return "", 0, g.logError("exchange_code", g.exchangeError("token_exchange_failed", "failed to exchange authorization code", err))
	}
	g.log("short-lived token obtained")

	res, err := g.session(ctx, short.AccessToken).Get("/oauth/access_token", facebook.Params{
		"grant_type":        "fb_exchange_token",
		"client_id":         g.oauth.ClientID,
		"client_secret":     g.oauth.ClientSecret,
		"fb_exchange_token": short.AccessToken,
	})
	if err != nil {
		e := g.graphError("long_lived_exchange", err)
		if e.Kind != KindTransient {
			e.Kind, e.Code = KindOAuth, "long_lived_exchange_failed"
			e.Message = "failed to exchange short-lived token for a long-lived token"
		}
		return "", 0, g.logError("long_lived_exchange", e)
	}

	var long transfer.GraphToken
	if err := res.Decode(&long); err != nil || long.AccessToken == "" {
		return "", 0, g.logError("long_lived_exchange", oauthError(g.name, "long_lived_exchange_failed", "long-lived token response had no access token", err))
	}
	g.log("long-lived token obtained", "expires_in", long.ExpiresIn)
	return long.AccessToken, time.Duration(long.ExpiresIn) * time.Second, nil
}

const pageFields = "id,name,access_token,link,picture{url},instagram_business_account{id,username,name,profile_picture_url}"

// listPages discovers the Facebook Pages the user granted access to.
func (g *graphClient) listPages(ctx context.Context, userToken string) ([]transfer.FacebookPage, error) {
	res, err := g.session(ctx, userToken).Get("/me/accounts", facebook.Params{"fields": pageFields, "limit": 100})
	if err != nil {
		e := g.graphError("page_discovery", err)
		if e.Kind != KindTransient {
			e.Kind, e.Code = KindOAuth, "page_discovery_failed"
			e.Message = "failed to list Facebook Pages for the account"
		}
		return nil, g.logError("page_discovery", e)
	}

	var pages []transfer.FacebookPage
	if err := res.DecodeField("data", &pages); err != nil {
		return nil, g.logError("page_discovery", oauthError(g.name, "page_discovery_failed", "unexpected page list response", err))
	}
	return pages, nil
}

func noPagesError(p Name) *Error {
	e := oauthError(p, "no_facebook_pages", "no Facebook Pages were shared with this app", nil)
	e.Remediation = strings.Join([]string{
		"1. Make sure the Facebook account manages at least one Facebook Page.",
		"2. Reconnect and, on the consent screen, choose \"Edit settings\" and select every Page you want to use.",
		"3. Grant the pages_show_list and pages_read_engagement permissions.",
	}, "\n")
	return e
}

// graphConnection probes a Graph object with the channel token.
func (g *graphClient) graphConnection(ctx context.Context, objectID string) ConnectionResult {
	token, err := g.accessToken()
	if err != nil {
		return ConnectionResult{Status: Unreachable, Detail: err.Error()}
	}
	if _, err := g.session(ctx, token).Get("/"+objectID, facebook.Params{"fields": "id"}); err != nil {
		return connectionFromError(&g.client, g.graphError("test_connection", err))
	}
	return connectionFromError(&g.client, nil)
}

func decodeID(res facebook.Result) (string, error) {
	var out transfer.GraphID
	if err := res.Decode(&out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("response has no id")
	}
	return out.ID, nil
}

func (g *graphClient) malformed(op string, err error) *Error {
	return &Error{Kind: KindPlatform, Provider: g.name, Op: op, Code: "malformed_response", Message: op + " returned an unexpected response", Err: err}
}
