package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/provider"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/pkg/utils"
)

const stateTTL = 15 * time.Minute

// ProviderFactory builds adapters; *provider.Factory satisfies it.
type ProviderFactory interface {
	Provider(name string, ch *models.Channel) (provider.Provider, error)
	SupportedProviders() []provider.Name
}

type ProviderInfo struct {
	Name         provider.Name         `json:"name"`
	Title        string                `json:"title"`
	Capabilities provider.Capabilities `json:"capabilities"`
	Limits       provider.Limits       `json:"limits"`
	Scopes       []string              `json:"scopes"`
}

type ChannelService interface {
	AuthorizationURL(ctx context.Context, userID, brandID int64, providerName string) (string, error)
	HandleCallback(ctx context.Context, providerName, code, state string) (*models.Channel, error)
	List(ctx context.Context, userID int64) ([]*models.Channel, error)
	TestConnection(ctx context.Context, userID, channelID int64) (provider.ConnectionResult, error)
	Disconnect(ctx context.Context, userID, channelID int64) error
	RefreshToken(ctx context.Context, ch *models.Channel) error
	Providers() []ProviderInfo
}

type channelService struct {
	cfg     config.Config
	cr      repository.ChannelRepository
	factory ProviderFactory
	now     func() time.Time
}

func NewChannelService(cfg config.Config, cr repository.ChannelRepository, factory ProviderFactory) ChannelService {
	return &channelService{
		cfg:     cfg,
		cr:      cr,
		factory: factory,
		now:     time.Now,
	}
}

// AuthorizationURL starts a connect flow. The state is a signed token
// naming the user, brand and provider so the callback needs no session.
func (s *channelService) AuthorizationURL(ctx context.Context, userID, brandID int64, providerName string) (string, error) {
	if userID == 0 {
		return "", invalid("user id is required")
	}
	p, err := s.factory.Provider(providerName, nil)
	if err != nil {
		return "", err
	}
	state, err := utils.GenerateStateToken(s.cfg.SecretKey, userID, brandID, string(p.Name()), stateTTL)
	if err != nil {
		return "", fmt.Errorf("error signing oauth state: %w", err)
	}
	return p.AuthorizationURL(state), nil
}

func (s *channelService) HandleCallback(ctx context.Context, providerName, code, state string) (*models.Channel, error) {
	claims, err := utils.ValidateStateToken(s.cfg.SecretKey, state)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	p, err := s.factory.Provider(providerName, nil)
	if err != nil {
		return nil, err
	}
	if claims.Provider != string(p.Name()) {
		slog.Info("oauth state issued for another provider", "state_provider", claims.Provider, "provider", p.Name())
		return nil, ErrInvalidState
	}

	creds, err := p.HandleCallback(ctx, code, state)
	if err != nil {
		return nil, err
	}

	ch := &models.Channel{
		UserID:           claims.UserID,
		BrandID:          claims.BrandID,
		Provider:         string(p.Name()),
		PlatformUserID:   creds.PlatformUserID,
		PlatformUsername: creds.PlatformUsername,
		DisplayName:      creds.DisplayName,
		TokenExpiresAt:   creds.ExpiresAt(s.now()),
		ProfileURL:       creds.ProfileURL,
		Avatar:           creds.Avatar,
		ProviderData:     creds.ProviderData,
		Status:           models.ChannelStatusActive,
	}
	if err := s.sealTokens(ch, creds); err != nil {
		return nil, err
	}

	id, err := s.cr.Upsert(ctx, nil, ch)
	if err != nil {
		return nil, fmt.Errorf("error saving channel: %w", err)
	}
	ch.ID = id
	slog.Info("channel connected", "channel_id", id, "provider", ch.Provider, "platform_user_id", ch.PlatformUserID)
	return ch, nil
}

func (s *channelService) sealTokens(ch *models.Channel, creds *provider.Credentials) error {
	access, err := utils.Encrypt([]byte(creds.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return fmt.Errorf("error encrypting access token: %w", err)
	}
	ch.AccessToken = access
	ch.RefreshToken = ""
	if creds.RefreshToken != "" {
		refresh, err := utils.Encrypt([]byte(creds.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return fmt.Errorf("error encrypting refresh token: %w", err)
		}
		ch.RefreshToken = refresh
	}
	return nil
}

func (s *channelService) List(ctx context.Context, userID int64) ([]*models.Channel, error) {
	if userID == 0 {
		return nil, invalid("user id is required")
	}
	channels, err := s.cr.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing channels: %w", err)
	}
	return channels, nil
}

func (s *channelService) owned(ctx context.Context, userID, channelID int64) (*models.Channel, error) {
	ok, err := s.cr.CheckByUserID(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("channel %d: %w", channelID, ErrNotFound)
	}
	ch, err := s.cr.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("channel %d: %w", channelID, ErrNotFound)
	}
	return ch, nil
}

func (s *channelService) TestConnection(ctx context.Context, userID, channelID int64) (provider.ConnectionResult, error) {
	ch, err := s.owned(ctx, userID, channelID)
	if err != nil {
		return provider.ConnectionResult{}, err
	}
	p, err := s.factory.Provider(ch.Provider, ch)
	if err != nil {
		return provider.ConnectionResult{}, err
	}
	return p.TestConnection(ctx), nil
}

func (s *channelService) Disconnect(ctx context.Context, userID, channelID int64) error {
	if _, err := s.owned(ctx, userID, channelID); err != nil {
		return err
	}
	if err := s.cr.SetStatus(ctx, channelID, models.ChannelStatusDisabled); err != nil {
		return fmt.Errorf("error disabling channel: %w", err)
	}
	slog.Info("channel disconnected", "channel_id", channelID)
	return nil
}

// RefreshToken renews the channel's access token. A channel whose platform
// refuses the refresh is flagged for reconnection.
func (s *channelService) RefreshToken(ctx context.Context, ch *models.Channel) error {
	p, err := s.factory.Provider(ch.Provider, ch)
	if err != nil {
		return err
	}

	creds, err := p.RefreshAccessToken(ctx)
	if err != nil {
		if k := provider.KindOf(err); k == provider.KindOAuth || k == provider.KindUnsupported {
			if serr := s.cr.SetStatus(ctx, ch.ID, models.ChannelStatusReconnectRequired); serr != nil {
				return errors.Join(err, serr)
			}
			slog.Info("channel needs reconnection", "channel_id", ch.ID, "provider", ch.Provider)
		}
		return err
	}

	updated := &models.Channel{TokenExpiresAt: creds.ExpiresAt(s.now())}
	if err := s.sealTokens(updated, creds); err != nil {
		return err
	}
	if err := s.cr.SetToken(ctx, ch.ID, ch.AccessToken, updated); err != nil {
		return fmt.Errorf("error saving refreshed token: %w", err)
	}
	slog.Info("channel token refreshed", "channel_id", ch.ID, "provider", ch.Provider)
	return nil
}

func (s *channelService) Providers() []ProviderInfo {
	names := s.factory.SupportedProviders()
	out := make([]ProviderInfo, 0, len(names))
	for _, n := range names {
		p, err := s.factory.Provider(string(n), nil)
		if err != nil {
			continue
		}
		cfg := p.Config()
		out = append(out, ProviderInfo{
			Name:         n,
			Title:        n.Title(),
			Capabilities: p.Capabilities(),
			Limits:       cfg.Limits,
			Scopes:       cfg.Scopes,
		})
	}
	return out
}
