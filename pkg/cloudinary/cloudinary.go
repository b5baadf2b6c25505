package cloudinary

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// StoredFile identifies an uploaded asset.
type StoredFile struct {
	URL      string
	PublicID string
}

// Service stores exercise attachments in Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores the file as a raw asset under dir, keeping the file name stable so
// the grader receives the file under the name staff uploaded it with.
func (s *Service) Upload(ctx context.Context, dir, name string, reader io.Reader) (StoredFile, error) {
	folder := strings.Trim(path.Join(s.folder, dir), "/")
	overwrite := true

	result, err := s.client.Upload.Upload(ctx, reader, uploader.UploadParams{
		Folder:       folder,
		PublicID:     SafeName(name),
		ResourceType: "raw",
		Overwrite:    &overwrite,
	})
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to upload asset: %w", err)
	}
	if result.Error.Message != "" {
		return StoredFile{}, fmt.Errorf("failed to upload asset: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Msg("attachment uploaded to cloudinary")
	return StoredFile{URL: result.SecureURL, PublicID: result.PublicID}, nil
}

// Delete removes a stored asset. Missing assets are not an error.
func (s *Service) Delete(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}

	result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: "raw",
	})
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("failed to delete asset: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", publicID).Str("result", result.Result).Msg("attachment removed from cloudinary")
	return nil
}

// SafeName reduces a file name to characters that are valid in a public id.
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	clean := func(value string) string {
		return strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
				return r
			}
			return '_'
		}, value)
	}

	base = strings.Trim(clean(base), "_")
	if base == "" || base == "." {
		base = "attachment"
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return base
	}
	return base + "." + clean(ext)
}
