package assets

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"DMChat/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG
const pngB64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

func TestResolve(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	ref, err := Resolve(ctx, store, "")
	require.NoError(t, err)
	assert.Empty(t, ref)

	ref, err = Resolve(ctx, store, "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", ref)

	ref, err = Resolve(ctx, store, "data:image/png;base64,"+pngB64)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, RoutePrefix))

	a, err := store.Get(ctx, strings.TrimPrefix(ref, RoutePrefix))
	require.NoError(t, err)
	assert.Equal(t, "image/png", a.ContentType)
}

func TestResolveRejects(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()
	text := base64.StdEncoding.EncodeToString([]byte("just some text"))

	for name, in := range map[string]string{
		"not an image": "data:image/png;base64," + text,
		"not base64":   "data:image/png;base64,@@@",
		"no comma":     "data:image/png;base64",
		"plain path":   "/etc/passwd",
		"not encoded":  "data:image/png,rawbytes",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Resolve(ctx, store, in)
			require.Error(t, err)
			assert.True(t, errs.ErrArgs.Is(err))
		})
	}
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewMemStore()
	ref, err := Resolve(context.Background(), store, "data:image/png;base64,"+pngB64)
	require.NoError(t, err)

	r := gin.New()
	r.GET(RoutePrefix+":id", Handler(store))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, ref, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, RoutePrefix+"missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
