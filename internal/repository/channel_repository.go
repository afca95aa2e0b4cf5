package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/maheshrc27/crosspost/internal/models"
)

var ErrTokenConflict = errors.New("channel token was changed concurrently")

type ChannelRepository interface {
	Upsert(ctx context.Context, tx *sql.Tx, ch *models.Channel) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Channel, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Channel, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*models.Channel, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.Channel, error)
	CheckByUserID(ctx context.Context, channelID, userID int64) (bool, error)
	SetToken(ctx context.Context, id int64, oldAccessToken string, ch *models.Channel) error
	SetStatus(ctx context.Context, id int64, status string) error
}

type channelRepository struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) ChannelRepository {
	return &channelRepository{db: db}
}

const channelColumns = `id, user_id, brand_id, provider, platform_user_id, platform_username, display_name,
	access_token, refresh_token, token_expires_at, profile_url, avatar, provider_data, status, created_at, updated_at`

// Upsert stores a connected channel. Reconnecting the same platform account
// to the same brand replaces its tokens and reactivates it.
func (r *channelRepository) Upsert(ctx context.Context, tx *sql.Tx, ch *models.Channel) (int64, error) {
	data, err := json.Marshal(ch.ProviderData)
	if err != nil {
		return 0, fmt.Errorf("encode provider data: %w", err)
	}

	query := `
		INSERT INTO channels (
			user_id,
			brand_id,
			provider,
			platform_user_id,
			platform_username,
			display_name,
			access_token,
			refresh_token,
			token_expires_at,
			profile_url,
			avatar,
			provider_data,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 'active')
		ON CONFLICT (brand_id, provider, platform_user_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform_username = EXCLUDED.platform_username,
			display_name = EXCLUDED.display_name,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			profile_url = EXCLUDED.profile_url,
			avatar = EXCLUDED.avatar,
			provider_data = EXCLUDED.provider_data,
			status = 'active',
			updated_at = CURRENT_TIMESTAMP
		RETURNING id
	`

	var id int64
	err = conn(r.db, tx).QueryRowContext(ctx, query,
		ch.UserID,
		ch.BrandID,
		ch.Provider,
		ch.PlatformUserID,
		ch.PlatformUsername,
		ch.DisplayName,
		ch.AccessToken,
		nullString(ch.RefreshToken),
		ch.TokenExpiresAt,
		ch.ProfileURL,
		ch.Avatar,
		data,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (*models.Channel, error) {
	var (
		ch      models.Channel
		refresh sql.NullString
		data    []byte
	)
	err := row.Scan(&ch.ID, &ch.UserID, &ch.BrandID, &ch.Provider, &ch.PlatformUserID, &ch.PlatformUsername,
		&ch.DisplayName, &ch.AccessToken, &refresh, &ch.TokenExpiresAt, &ch.ProfileURL, &ch.Avatar,
		&data, &ch.Status, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return nil, err
	}
	ch.RefreshToken = refresh.String
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ch.ProviderData); err != nil {
			return nil, fmt.Errorf("decode provider data of channel %d: %w", ch.ID, err)
		}
	}
	return &ch, nil
}

func (r *channelRepository) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`

	ch, err := scanChannel(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return ch, nil
}

func (r *channelRepository) list(ctx context.Context, query string, args ...any) ([]*models.Channel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		channels = append(channels, ch)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return channels, nil
}

func (r *channelRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Channel, error) {
	return r.list(ctx, `SELECT `+channelColumns+` FROM channels WHERE user_id = $1 ORDER BY id`, userID)
}

func (r *channelRepository) ListByIDs(ctx context.Context, ids []int64) ([]*models.Channel, error) {
	return r.list(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
}

// ListExpiring returns active channels whose token expires before the
// given time and that hold a refresh token.
func (r *channelRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels
		WHERE status = 'active'
		AND token_expires_at IS NOT NULL
		AND token_expires_at < $1
		ORDER BY token_expires_at`
	return r.list(ctx, query, before)
}

func (r *channelRepository) CheckByUserID(ctx context.Context, channelID, userID int64) (bool, error) {
	query := "SELECT 1 FROM channels WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, channelID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

// SetToken replaces the tokens only if the stored access token is still
// oldAccessToken, so two refreshes of one channel cannot interleave.
func (r *channelRepository) SetToken(ctx context.Context, id int64, oldAccessToken string, ch *models.Channel) error {
	query := `
		UPDATE channels
		SET
			access_token = $3,
			refresh_token = COALESCE($4, refresh_token),
			token_expires_at = $5,
			status = 'active',
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND access_token = $2
	`
	result, err := r.db.ExecContext(ctx, query, id, oldAccessToken, ch.AccessToken, nullString(ch.RefreshToken), ch.TokenExpiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("channel token not updated", "channel_id", id)
		return ErrTokenConflict
	}
	return nil
}

func (r *channelRepository) SetStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE channels SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
