package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/transfer"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var allowedMedia = map[string]string{
	"jpg":  models.MediaTypeImage,
	"png":  models.MediaTypeImage,
	"gif":  models.MediaTypeImage,
	"webp": models.MediaTypeImage,
	"mp4":  models.MediaTypeVideo,
	"mov":  models.MediaTypeVideo,
	"m4v":  models.MediaTypeVideo,
}

type MediaService interface {
	Upload(ctx context.Context, userID int64, data []byte) (*transfer.MediaUpload, error)
}

type mediaService struct {
	store ObjectStore
}

func NewMediaService(store ObjectStore) MediaService {
	return &mediaService{store: store}
}

// Upload stores a file under a random key and returns the absolute URL a
// post can reference. The type is sniffed from the content, never trusted
// from the client.
func (s *mediaService) Upload(ctx context.Context, userID int64, data []byte) (*transfer.MediaUpload, error) {
	if len(data) == 0 {
		return nil, invalid("file is empty")
	}
	kind, err := filetype.Match(data)
	if err != nil || kind == types.Unknown {
		return nil, invalid("unrecognized file type")
	}
	mediaType, ok := allowedMedia[kind.Extension]
	if !ok {
		return nil, invalid("file type %s is not allowed", kind.Extension)
	}

	id, err := gonanoid.New()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	key := fmt.Sprintf("%d/%s.%s", userID, id, kind.Extension)
	if err := s.store.Put(ctx, key, data, kind.MIME.Value); err != nil {
		return nil, fmt.Errorf("error uploading media: %w", err)
	}

	slog.Info("media uploaded", "key", key, "size", len(data))
	return &transfer.MediaUpload{
		URL:       s.store.PublicURL(key),
		MediaType: mediaType,
		MIME:      kind.MIME.Value,
		Size:      len(data),
	}, nil
}
