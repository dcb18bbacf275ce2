// Package images maps stored image filenames to fetchable URLs and uploads
// new images into the per-author namespace.
package images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/logging"
)

// Placeholder is returned in place of a URL that could not be resolved.
const Placeholder = ""

const (
	// DefaultMaxAge keeps cached URLs below the 15 minute presign lifetime.
	DefaultMaxAge = 10 * time.Minute
	fetchTimeout  = 30 * time.Second
)

// Source is an object store holding post and profile images.
type Source interface {
	// DownloadURL returns a time-limited URL for the object.
	DownloadURL(ctx context.Context, objectPath string) (string, error)
	// Upload writes the object.
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) error
}

// ObjectPath is where uid's image filename lives.
func ObjectPath(uid, filename string) string {
	return "images/" + uid + "/" + filename
}

type result struct {
	url string
	err error
	at  time.Time
}

// Image is one resolved reference.
type Image struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Failed   bool   `json:"failed,omitempty"`
}

// Resolver caches resolved URLs, and failures, per (uid, filename) for its
// lifetime or until maxAge passes. It is meant to live as long as one view
// or request batch. Concurrent lookups of one key share a single backend
// request.
type Resolver struct {
	src    Source
	log    logging.Logger
	maxAge time.Duration
	now    func() time.Time

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]result
}

func NewResolver(src Source, log logging.Logger) *Resolver {
	return &Resolver{src: src, log: log, maxAge: DefaultMaxAge, now: time.Now, cache: make(map[string]result)}
}

func (r *Resolver) lookup(key string) (result, bool) {
	r.mu.RLock()
	res, ok := r.cache[key]
	r.mu.RUnlock()
	if !ok || r.now().Sub(res.at) >= r.maxAge {
		return result{}, false
	}
	return res, true
}

// Resolve returns the URL for filename owned by uid. On failure it returns
// Placeholder and an error wrapping common.ErrImageResolutionFailed; the
// failure is cached and not retried by this resolver, unless the fetch was
// cancelled or timed out.
func (r *Resolver) Resolve(ctx context.Context, uid, filename string) (string, error) {
	key := ObjectPath(uid, filename)

	if res, ok := r.lookup(key); ok {
		return res.url, res.err
	}

	ch := r.group.DoChan(key, func() (any, error) {
		if res, ok := r.lookup(key); ok {
			return res, nil
		}

		// shared by every waiting caller, so no single caller may cancel it
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		var res result
		url, err := r.src.DownloadURL(fetchCtx, key)
		if err != nil {
			r.log.Warn(ctx, "image resolution failed", "path", key, "error", err)
			res = result{url: Placeholder, err: fmt.Errorf("%w: %s: %w", common.ErrImageResolutionFailed, key, err)}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, nil
			}
		} else {
			res = result{url: url}
		}

		res.at = r.now()
		r.mu.Lock()
		r.cache[key] = res
		r.mu.Unlock()
		return res, nil
	})

	select {
	case v := <-ch:
		res := v.Val.(result)
		return res.url, res.err
	case <-ctx.Done():
		return Placeholder, fmt.Errorf("%w: %s: %w", common.ErrImageResolutionFailed, key, ctx.Err())
	}
}

// ResolveAll resolves every filename concurrently. A failed image degrades
// to Placeholder without affecting the others.
func (r *Resolver) ResolveAll(ctx context.Context, uid string, filenames []string) []Image {
	out := make([]Image, len(filenames))
	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range filenames {
		g.Go(func() error {
			url, err := r.Resolve(ctx, uid, name)
			out[i] = Image{Filename: name, URL: url, Failed: err != nil}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
