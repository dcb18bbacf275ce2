package images

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Upload is one image chosen by the user.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Store writes u under images/{uid}/{uuid}{ext} and returns the generated
// filename, which is what documents keep.
func Store(ctx context.Context, src Source, uid string, u Upload) (string, error) {
	name := uuid.NewString() + strings.ToLower(path.Ext(u.Filename))
	if err := src.Upload(ctx, ObjectPath(uid, name), u.ContentType, u.Body); err != nil {
		return "", err
	}
	return name, nil
}
