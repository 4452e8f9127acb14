package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
)

// FileReader reads files by archive path. *epubslice.Book implements it.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

// Archive serves URIs whose path names a file inside a book archive,
// such as "epub:///OEBPS/images/fig1.png".
type Archive struct {
	Files FileReader
}

// Fetch implements Fetcher.
func (a Archive) Fetch(ctx context.Context, u *url.URL) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.TrimPrefix(u.Path, "/")
	data, err := a.Files.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return &Response{
		Body:      io.NopCloser(bytes.NewReader(data)),
		MediaType: parseMediaType(mime.TypeByExtension(path.Ext(name))),
	}, nil
}

var errMalformedData = errors.New("fetch: malformed data URI")

// Data decodes RFC 2397 data: URIs in-process.
type Data struct{}

// Fetch implements Fetcher.
func (Data) Fetch(_ context.Context, u *url.URL) (*Response, error) {
	raw := u.Opaque
	if raw == "" {
		raw = strings.TrimPrefix(u.String(), u.Scheme+":")
	}
	meta, payload, ok := strings.Cut(raw, ",")
	if !ok {
		return nil, errMalformedData
	}

	var data []byte
	if b64, found := strings.CutSuffix(meta, ";base64"); found {
		meta = b64
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedData, err)
		}
		data = decoded
	} else {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformedData, err)
		}
		data = []byte(unescaped)
	}

	return &Response{
		Body:      io.NopCloser(bytes.NewReader(data)),
		MediaType: parseMediaType(meta),
	}, nil
}
