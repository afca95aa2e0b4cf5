package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/huandu/facebook"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

var whatsappLimits = Limits{
	MaxTextLength: 4096,
	MaxVideos:     -1,
}

const whatsappCaptionLimit = 1024

// whatsapp broadcasts a post as Cloud API messages from a business phone
// number to the recipients configured on the channel.
type whatsapp struct {
	graphClient
}

func newWhatsApp(c client, cfg config.Config) *whatsapp {
	return &whatsapp{
		graphClient: newGraphClient(c, cfg.WhatsApp, cfg.GraphAPIVersion, []string{
			"whatsapp_business_management",
			"whatsapp_business_messaging",
			"business_management",
		}),
	}
}

func (p *whatsapp) Name() Name     { return WhatsApp }
func (p *whatsapp) Config() Config { return p.graphConfig(whatsappLimits) }

func (p *whatsapp) Capabilities() Capabilities {
	return Capabilities{}
}

func (p *whatsapp) AuthorizationURL(state string) string {
	return p.authorizationURL(state)
}

// HandleCallback finds the WhatsApp Business Account granted to the app and
// its first registered phone number.
func (p *whatsapp) HandleCallback(ctx context.Context, code, state string) (*Credentials, error) {
	userToken, expiresIn, err := p.exchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	res, err := p.session(ctx, p.app.AppId+"|"+p.app.AppSecret).Get("/debug_token", facebook.Params{"input_token": userToken})
	if err != nil {
		e := p.graphError("waba_discovery", err)
		if e.Kind != KindTransient {
			e.Kind, e.Code = KindOAuth, "token_inspection_failed"
			e.Message = "failed to inspect the granted WhatsApp permissions"
		}
		return nil, p.logError("waba_discovery", e)
	}
	var debug transfer.DebugToken
	if err := res.Decode(&debug); err != nil {
		return nil, p.logError("waba_discovery", oauthError(WhatsApp, "token_inspection_failed", "unexpected debug_token response", err))
	}

	wabaID := ""
	for _, gs := range debug.Data.GranularScopes {
		if gs.Scope == "whatsapp_business_management" && len(gs.TargetIDs) > 0 {
			wabaID = gs.TargetIDs[0]
			break
		}
	}
	if wabaID == "" {
		e := oauthError(WhatsApp, "no_whatsapp_business_account", "no WhatsApp Business Account was shared with this app", nil)
		e.Remediation = strings.Join([]string{
			"1. Create a WhatsApp Business Account in Meta Business Suite if you do not have one.",
			"2. Reconnect and select the WhatsApp Business Account on the consent screen.",
			"3. Grant whatsapp_business_management and whatsapp_business_messaging.",
		}, "\n")
		return nil, p.logError("waba_discovery", e)
	}
	p.log("whatsapp business account found", "waba_id", wabaID)

	res, err = p.session(ctx, userToken).Get("/"+wabaID+"/phone_numbers", facebook.Params{"fields": "id,display_phone_number,verified_name,quality_rating"})
	if err != nil {
		e := p.graphError("phone_discovery", err)
		if e.Kind != KindTransient {
			e.Kind, e.Code = KindOAuth, "phone_discovery_failed"
			e.Message = "failed to list phone numbers of the WhatsApp Business Account"
		}
		return nil, p.logError("phone_discovery", e)
	}
	var phones []transfer.WhatsAppPhoneNumber
	if err := res.DecodeField("data", &phones); err != nil {
		return nil, p.logError("phone_discovery", oauthError(WhatsApp, "phone_discovery_failed", "unexpected phone number response", err))
	}
	if len(phones) == 0 {
		e := oauthError(WhatsApp, "no_phone_number", fmt.Sprintf("WhatsApp Business Account %s has no registered phone number", wabaID), nil)
		e.Remediation = strings.Join([]string{
			"1. In WhatsApp Manager, add a phone number to the business account.",
			"2. Verify the number and complete display name review.",
			"3. Connect again.",
		}, "\n")
		return nil, p.logError("phone_discovery", e)
	}

	phone := phones[0]
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone.DisplayPhoneNumber)

	return &Credentials{
		AccessToken:      userToken,
		ExpiresIn:        expiresIn,
		PlatformUserID:   phone.ID,
		PlatformUsername: phone.DisplayPhoneNumber,
		DisplayName:      phone.VerifiedName,
		ProfileURL:       "https://wa.me/" + digits,
		ProviderData: map[string]string{
			"wabaId":             wabaID,
			"phoneNumberId":      phone.ID,
			"displayPhoneNumber": phone.DisplayPhoneNumber,
		},
	}, nil
}

func (p *whatsapp) RefreshAccessToken(ctx context.Context) (*Credentials, error) {
	return nil, p.logError("refresh_token", unsupportedOperation(WhatsApp, "refresh",
		"WhatsApp tokens cannot be refreshed; reconnect the channel before the token expires"))
}

func (p *whatsapp) TestConnection(ctx context.Context) ConnectionResult {
	return p.graphConnection(ctx, p.phoneID())
}

func (p *whatsapp) phoneID() string {
	if id := p.channel.Data("phoneNumberId"); id != "" {
		return id
	}
	if p.channel != nil {
		return p.channel.PlatformUserID
	}
	return ""
}

// recipients reads the broadcast list stored on the channel as a comma
// separated list of phone numbers.
func (p *whatsapp) recipients() []string {
	var out []string
	for _, r := range strings.Split(p.channel.Data("recipients"), ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Publish sends one message per recipient. Only the first media item is
// sent because a WhatsApp message carries a single attachment.
func (p *whatsapp) Publish(ctx context.Context, req *PublishRequest) (*PublishResult, error) {
	limits := whatsappLimits
	if req != nil && len(req.MediaURLs) > 0 {
		limits.MaxTextLength = whatsappCaptionLimit
	}
	if err := p.validate(req, limits); err != nil {
		return nil, err
	}
	to := p.recipients()
	if len(to) == 0 {
		return nil, p.logError("validate", validationError(WhatsApp, "recipients_required", "WhatsApp channel has no broadcast recipients configured"))
	}
	token, err := p.accessToken()
	if err != nil {
		return nil, p.logError("publish", err)
	}
	if len(req.MediaURLs) > 1 {
		p.log("one attachment per message, sending first media item", "ignored", len(req.MediaURLs)-1)
	}

	s := p.session(ctx, token)
	text := req.Caption()
	var first string
	for i, recipient := range to {
		params := facebook.Params{"messaging_product": "whatsapp", "recipient_type": "individual", "to": recipient}
		switch {
		case len(req.MediaURLs) == 0:
			params["type"] = "text"
			params["text"] = map[string]any{"body": text, "preview_url": true}
		case req.IsVideo(0):
			params["type"] = "video"
			params["video"] = map[string]any{"link": req.MediaURLs[0], "caption": text}
		default:
			params["type"] = "image"
			params["image"] = map[string]any{"link": req.MediaURLs[0], "caption": text}
		}

		res, err := s.Post("/"+p.phoneID()+"/messages", params)
		if err != nil {
			e := p.graphError("send_message", err)
			e.Message = fmt.Sprintf("sending to recipient %d of %d failed after %d delivered", i+1, len(to), i)
			if i > 0 {
				// a retry would message the delivered recipients again
				e.Kind, e.Code = KindPlatform, "partial_delivery"
			}
			return nil, p.logError("send_message", e)
		}
		var sent transfer.WhatsAppMessageResponse
		if err := res.Decode(&sent); err != nil || len(sent.Messages) == 0 {
			return nil, p.logError("send_message", p.malformed("send_message", err))
		}
		if first == "" {
			first = sent.Messages[0].ID
		}
	}
	p.log("broadcast sent", "recipients", len(to), "message_id", first)

	var media []string
	if len(req.MediaURLs) > 0 {
		media = req.MediaURLs[:1]
	}
	return &PublishResult{
		Success:        true,
		PlatformPostID: first,
		Provider:       WhatsApp,
		Content:        text,
		MediaURLs:      media,
		MediaType:      req.resolvedMediaType(),
	}, nil
}

func (p *whatsapp) UpdatePost(ctx context.Context, platformPostID, content string) error {
	return p.logError("update_post", unsupportedOperation(WhatsApp, "update", "sent WhatsApp messages cannot be edited"))
}

func (p *whatsapp) DeletePost(ctx context.Context, platformPostID string) error {
	return p.logError("delete_post", unsupportedOperation(WhatsApp, "delete", "sent WhatsApp messages cannot be deleted through the Cloud API"))
}

func (p *whatsapp) PostAnalytics(ctx context.Context, platformPostID string) (*Analytics, error) {
	p.log("analytics not available", "message_id", platformPostID)
	return nil, nil
}
