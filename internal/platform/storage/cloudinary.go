package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"stepleague/internal/platform/config"
)

// CloudinaryStore uploads proofs to a Cloudinary folder.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore(cfg *config.Config) (*CloudinaryStore, error) {
	if !cfg.CloudinaryEnabled() {
		return nil, fmt.Errorf("cloudinary configuration is missing")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	return &CloudinaryStore{cld: cld, folder: strings.Trim(cfg.CloudinaryFolder, "/")}, nil
}

func (s *CloudinaryStore) Put(ctx context.Context, objectPath, contentType string, body io.Reader) error {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	overwrite := true
	_, err = s.cld.Upload.Upload(ctx, body, uploader.UploadParams{
		PublicID:     publicID(clean),
		Folder:       s.folder,
		Overwrite:    &overwrite,
		ResourceType: "image",
	})
	if err != nil {
		return fmt.Errorf("failed to upload proof to cloudinary: %w", err)
	}
	return nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, objectPath string) error {
	clean, err := CleanPath(objectPath)
	if err != nil {
		return err
	}
	_, err = s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     s.folder + "/" + publicID(clean),
		ResourceType: "image",
	})
	if err != nil {
		return fmt.Errorf("failed to delete proof: %w", err)
	}
	return nil
}

func (s *CloudinaryStore) URL(objectPath string) string {
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/%s/%s",
		s.cld.Config.Cloud.CloudName, s.folder, publicID(strings.TrimPrefix(objectPath, "/")))
}

// publicID drops the extension; Cloudinary serves the image under any format suffix.
func publicID(clean string) string {
	return strings.TrimSuffix(clean, path.Ext(clean))
}

// New picks Cloudinary when credentials are configured and falls back to local disk.
func New(cfg *config.Config) (ProofStore, *LocalStore, error) {
	if cfg.CloudinaryEnabled() {
		cs, err := NewCloudinaryStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		return cs, nil, nil
	}
	ls, err := NewLocalStore(cfg.UploadDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, nil, err
	}
	return ls, ls, nil
}
