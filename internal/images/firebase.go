package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// downloadTokenKey is the object metadata key holding download tokens.
const downloadTokenKey = "firebaseStorageDownloadTokens"

// ErrNoDownloadToken is returned for objects uploaded without a token.
var ErrNoDownloadToken = errors.New("object has no download token")

// FirebaseStorage serves images from a Firebase Storage bucket.
type FirebaseStorage struct {
	bucket *storage.BucketHandle
}

func NewFirebaseStorage(bucket *storage.BucketHandle) *FirebaseStorage {
	return &FirebaseStorage{bucket: bucket}
}

// DownloadURL reads the object's metadata and embeds its download token.
func (f *FirebaseStorage) DownloadURL(ctx context.Context, objectPath string) (string, error) {
	attrs, err := f.bucket.Object(objectPath).Attrs(ctx)
	if err != nil {
		return "", err
	}
	token, _, _ := strings.Cut(attrs.Metadata[downloadTokenKey], ",")
	if token == "" {
		return "", ErrNoDownloadToken
	}
	return DownloadURL(attrs.Bucket, objectPath, token), nil
}

// Upload writes the object with a fresh download token.
func (f *FirebaseStorage) Upload(ctx context.Context, objectPath, contentType string, r io.Reader) error {
	w := f.bucket.Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = map[string]string{downloadTokenKey: uuid.NewString()}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return w.Close()
}

// DownloadURL builds the token URL for an object.
func DownloadURL(bucket, objectPath, token string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket, url.PathEscape(objectPath), url.QueryEscape(token))
}
