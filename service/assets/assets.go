package assets

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"

	"DMChat/tools/errs"
	"DMChat/tools/ids"

	"github.com/gabriel-vasile/mimetype"
)

// RoutePrefix is where stored assets are served.
const RoutePrefix = "/api/assets/"

// MaxImageSize bounds a decoded upload.
const MaxImageSize = 8 << 20

type Asset struct {
	ID          string
	ContentType string
	Data        []byte
}

// Store keeps uploaded images.
type Store interface {
	Put(ctx context.Context, a *Asset) error
	Get(ctx context.Context, id string) (*Asset, error)
}

// Ref is the URL clients use to fetch asset id.
func Ref(id string) string { return RoutePrefix + id }

// Resolve turns client image input into a stored reference. Empty input
// stays empty, http(s) URLs pass through, data URLs are decoded, checked to
// be an image and stored.
func Resolve(ctx context.Context, store Store, input string) (string, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return "", nil
	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"), strings.HasPrefix(input, RoutePrefix):
		return input, nil
	case strings.HasPrefix(input, "data:"):
	default:
		return "", errs.ErrArgs.WrapMsg("image must be a data URL or an http(s) URL")
	}

	data, err := decodeDataURL(input)
	if err != nil {
		return "", err
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", errs.ErrArgs.WrapMsg("unsupported image type", "type", mt.String())
	}
	a := &Asset{ID: ids.GenerateString(), ContentType: mt.String(), Data: data}
	if err := store.Put(ctx, a); err != nil {
		return "", err
	}
	return Ref(a.ID), nil
}

// decodeDataURL accepts data:[<type>][;base64],<payload>. The declared type is
// ignored; content is sniffed instead.
func decodeDataURL(s string) ([]byte, error) {
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return nil, errs.ErrArgs.WrapMsg("malformed data URL")
	}
	meta, payload := s[len("data:"):comma], s[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, errs.ErrArgs.WrapMsg("data URL must be base64 encoded")
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageSize {
		return nil, errs.ErrArgs.WrapMsg("image too large", "max", MaxImageSize)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errs.ErrArgs.WrapMsg("invalid base64 in data URL")
	}
	if len(data) == 0 {
		return nil, errs.ErrArgs.WrapMsg("empty image")
	}
	return data, nil
}

// MemStore keeps assets in memory.
type MemStore struct {
	mu   sync.RWMutex
	byID map[string]*Asset
}

func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]*Asset)}
}

func (m *MemStore) Put(_ context.Context, a *Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.byID[a.ID] = &c
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, errs.ErrRecordNotFound.WrapMsg("asset not found", "id", id)
	}
	c := *a
	return &c, nil
}
