package services

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	config "github.com/ysuzuki8/market_dm/configs"
	"github.com/ysuzuki8/market_dm/utils"
)

// StoredFile describes a persisted attachment blob.
type StoredFile struct {
	Path string
	Mime string
	Size int64
}

// AttachmentStore is the blob-storage collaborator consumed by the message
// ledger. Store failures wrap ErrStorage.
type AttachmentStore interface {
	Store(ctx context.Context, file *multipart.FileHeader) (StoredFile, error)
	Remove(ctx context.Context, path string) error
	URLFor(path string) string
}

// CloudinaryStore persists attachments in Cloudinary.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStore() (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromURL(config.Config("CLOUDINARY_URL"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize Cloudinary: %v", ErrStorage, err)
	}
	return &CloudinaryStore{cld: cld, folder: "dm_attachments"}, nil
}

func (s *CloudinaryStore) Store(ctx context.Context, file *multipart.FileHeader) (StoredFile, error) {
	f, err := file.Open()
	if err != nil {
		return StoredFile{}, fmt.Errorf("%w: failed to open upload: %v", ErrStorage, err)
	}
	defer f.Close()

	key := utils.GenerateObjectKey(file.Filename)
	resp, err := s.cld.Upload.Upload(ctx, f, uploader.UploadParams{
		Folder:   s.folder,
		PublicID: key,
	})
	if err != nil {
		return StoredFile{}, fmt.Errorf("%w: upload failed: %v", ErrStorage, err)
	}

	return StoredFile{
		Path: resp.PublicID,
		Mime: file.Header.Get("Content-Type"),
		Size: file.Size,
	}, nil
}

func (s *CloudinaryStore) Remove(ctx context.Context, path string) error {
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: path})
	if err != nil {
		return fmt.Errorf("%w: destroy failed: %v", ErrStorage, err)
	}
	return nil
}

func (s *CloudinaryStore) URLFor(path string) string {
	img, err := s.cld.Image(path)
	if err != nil {
		return path
	}
	u, err := img.String()
	if err != nil {
		return path
	}
	return u
}

// LocalStore persists attachments on the local filesystem, for development
// and tests.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create attachment dir: %v", ErrStorage, err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *LocalStore) Store(ctx context.Context, file *multipart.FileHeader) (StoredFile, error) {
	src, err := file.Open()
	if err != nil {
		return StoredFile{}, fmt.Errorf("%w: failed to open upload: %v", ErrStorage, err)
	}
	defer src.Close()

	key := utils.GenerateObjectKey(file.Filename)
	dst, err := os.Create(filepath.Join(s.dir, key))
	if err != nil {
		return StoredFile{}, fmt.Errorf("%w: failed to create file: %v", ErrStorage, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return StoredFile{}, fmt.Errorf("%w: failed to write file: %v", ErrStorage, err)
	}

	return StoredFile{
		Path: key,
		Mime: file.Header.Get("Content-Type"),
		Size: file.Size,
	}, nil
}

func (s *LocalStore) Remove(ctx context.Context, path string) error {
	err := os.Remove(filepath.Join(s.dir, filepath.Base(path)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: failed to remove file: %v", ErrStorage, err)
	}
	return nil
}

func (s *LocalStore) URLFor(path string) string {
	return s.baseURL + "/" + path
}
