package epubslice

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/simp-lee/epubslice/fetch"
)

// Localizer defaults.
const (
	DefaultConcurrency = 4
	DefaultImagePrefix = "images/"
	DefaultImageExt    = ".jpg"
)

var errNoSource = errors.New("epubslice: image has no usable source")

// Storage persists fetched images. *tempstore.Store implements it.
type Storage interface {
	// Create writes r to a new file called name and returns its full path.
	Create(name string, r io.Reader) (string, error)
}

// Localizer replaces every image reference in a fragment with a reference
// to a locally stored copy.
//
// Images are fetched concurrently. A failed image is removed from the
// fragment and logged; it never fails the fragment.
type Localizer struct {
	Fetcher fetch.Fetcher
	Store   Storage

	// Concurrency bounds the number of fetches in flight. Values <= 0 mean
	// DefaultConcurrency.
	Concurrency int

	// DisableImages removes every image without fetching anything.
	DisableImages bool

	// Prefix is prepended to the stored file name to form the new
	// reference (default "images/").
	Prefix string

	Logger *slog.Logger
}

// mediaRef is an image node awaiting its fetch.
type mediaRef struct {
	node     *html.Node
	position int
	src      *url.URL
}

// Localize fetches the images of frag, stores them, and rewrites frag in
// place. It returns the stored assets in document order. The fragment is
// left consistent even when ctx is cancelled; ctx.Err() is returned then.
func (l *Localizer) Localize(ctx context.Context, frag *Fragment) ([]Asset, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	nodes := frag.Images()
	if len(nodes) == 0 {
		return nil, nil
	}
	if l.DisableImages {
		for _, n := range nodes {
			detach(n)
		}
		return nil, nil
	}
	if l.Fetcher == nil || l.Store == nil {
		return nil, errors.New("epubslice: localizer needs a fetcher and a store")
	}

	refs := make([]mediaRef, 0, len(nodes))
	for i, n := range nodes {
		src, err := imageSource(n, frag.Base)
		if err != nil {
			logger.Warn("dropping image", "position", i, "error", err)
			continue
		}
		refs = append(refs, mediaRef{node: n, position: i, src: src})
	}

	var (
		mu     sync.Mutex
		assets []Asset
	)
	limit := l.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, ref := range refs {
		g.Go(func() error {
			asset, err := l.store(ctx, ref)
			if err != nil {
				logger.Warn("dropping image", "url", ref.src.String(), "position", ref.position, "error", err)
				return nil
			}
			mu.Lock()
			assets = append(assets, asset)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(assets, func(a, b Asset) int { return cmp.Compare(a.Position, b.Position) })

	// Only this goroutine touches the tree.
	next := 0
	for i, n := range nodes {
		if next < len(assets) && assets[next].Position == i {
			setLocalRef(n, assets[next].Ref)
			next++
			continue
		}
		detach(n)
	}
	return assets, ctx.Err()
}

// store fetches one image and writes it to the store under a fresh name.
func (l *Localizer) store(ctx context.Context, ref mediaRef) (Asset, error) {
	resp, err := l.Fetcher.Fetch(ctx, ref.src)
	if err != nil {
		return Asset{}, err
	}
	defer resp.Body.Close()

	name := uuid.NewString() + imageExt(ref.src, resp.MediaType)
	p, err := l.Store.Create(name, resp.Body)
	if err != nil {
		return Asset{}, err
	}
	return Asset{
		Source:    ref.src,
		Name:      name,
		Path:      p,
		Ref:       cmp.Or(l.Prefix, DefaultImagePrefix) + name,
		MediaType: resp.MediaType,
		Position:  ref.position,
	}, nil
}

// imageSource resolves the first non-empty source attribute of n against base.
func imageSource(n *html.Node, base *url.URL) (*url.URL, error) {
	var raw string
	for _, key := range imageSourceKeys[n.DataAtom] {
		if v := strings.TrimSpace(getAttr(n, key)); v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		return nil, errNoSource
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNoSource, err)
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	// Protocol-relative references inside a book point at the web.
	if u.Scheme == BookScheme && u.Host != "" {
		u.Scheme = "https"
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("%w: relative reference %q without base", errNoSource, raw)
	}
	return u, nil
}

var mediaTypeExt = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
	"image/bmp":     ".bmp",
	"image/avif":    ".avif",
}

// imageExt keeps the source's extension when it has a plausible one, then
// tries the response media type, then falls back to DefaultImageExt.
func imageExt(src *url.URL, mediaType string) string {
	ext := strings.ToLower(path.Ext(src.Path))
	if len(ext) >= 2 && len(ext) <= 6 && isAlnum(ext[1:]) {
		return ext
	}
	if e, ok := mediaTypeExt[mediaType]; ok {
		return e
	}
	return DefaultImageExt
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9') && !isASCIILetter(c) {
			return false
		}
	}
	return true
}

// setLocalRef clears n's attributes and points it at ref.
func setLocalRef(n *html.Node, ref string) {
	key := "src"
	if n.DataAtom == atom.Image {
		key = "href"
	}
	n.Attr = []html.Attribute{{Key: key, Val: ref}}
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
