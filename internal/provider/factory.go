package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
)

// Name identifies a supported platform.
type Name string

const (
	LinkedIn  Name = "linkedin"
	Facebook  Name = "facebook"
	Instagram Name = "instagram"
	Twitter   Name = "twitter"
	YouTube   Name = "youtube"
	WhatsApp  Name = "whatsapp"
)

var titles = map[Name]string{
	LinkedIn:  "LinkedIn",
	Facebook:  "Facebook",
	Instagram: "Instagram",
	Twitter:   "Twitter",
	YouTube:   "YouTube",
	WhatsApp:  "WhatsApp",
}

// Title is the platform name as shown to users.
func (n Name) Title() string {
	if t, ok := titles[n]; ok {
		return t
	}
	return string(n)
}

var (
	_ Provider = (*linkedin)(nil)
	_ Provider = (*fbPage)(nil)
	_ Provider = (*instagram)(nil)
	_ Provider = (*twitter)(nil)
	_ Provider = (*youtube)(nil)
	_ Provider = (*whatsapp)(nil)
)

var supported = []Name{LinkedIn, Facebook, Instagram, Twitter, YouTube, WhatsApp}

// ParseName maps a provider string to its Name. Unknown names fail with a
// configuration error.
func ParseName(s string) (Name, error) {
	n := Name(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range supported {
		if n == known {
			return n, nil
		}
	}
	return "", unsupportedProvider(s)
}

type Option func(*Factory)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Factory) { f.deps.HTTPClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.deps.Logger = l }
}

func WithClock(c Clock) Option {
	return func(f *Factory) { f.deps.Clock = c }
}

// Factory builds adapters. It performs no I/O.
type Factory struct {
	cfg  config.Config
	deps Deps
}

func NewFactory(cfg config.Config, opts ...Option) *Factory {
	f := &Factory{
		cfg: cfg,
		deps: Deps{
			HTTPClient: &http.Client{Timeout: cfg.Publishing.HTTPTimeout},
			Logger:     slog.Default(),
			Clock:      realClock{},
		},
	}
	if f.deps.HTTPClient.Timeout == 0 {
		f.deps.HTTPClient.Timeout = 60 * time.Second
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns the adapter for name bound to ch. ch may be nil for the
// OAuth connect flow, which has no stored credentials yet.
func (f *Factory) Provider(name string, ch *models.Channel) (Provider, error) {
	n, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	if ch != nil && ch.Provider != "" && ch.Provider != string(n) {
		e := unsupportedProvider(name)
		e.Provider = n
		e.Code = "channel_provider_mismatch"
		e.Message = fmt.Sprintf("channel %d belongs to %s, not %s", ch.ID, ch.Provider, n)
		return nil, e
	}

	c := newClient(n, ch, f.cfg, f.deps)
	switch n {
	case LinkedIn:
		return newLinkedIn(c, f.cfg), nil
	case Facebook:
		return newFacebook(c, f.cfg), nil
	case Instagram:
		return newInstagram(c, f.cfg), nil
	case Twitter:
		return newTwitter(c, f.cfg), nil
	case YouTube:
		return newYouTube(c, f.cfg), nil
	case WhatsApp:
		return newWhatsApp(c, f.cfg), nil
	}
	return nil, unsupportedProvider(name)
}

// SupportedProviders lists every registered provider in a stable order.
func (f *Factory) SupportedProviders() []Name {
	out := make([]Name, len(supported))
	copy(out, supported)
	return out
}

func (f *Factory) IsProviderSupported(name string) bool {
	_, err := ParseName(name)
	return err == nil
}
