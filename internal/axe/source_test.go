package axe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-a11y/internal/axe"
	"github.com/xkilldash9x/scalpel-a11y/internal/network"
)

const fakeEngine = `window.axe = { run: async () => ({ violations: [] }) };`

func newEngineServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSourceLoader_Remote(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("downloads once and serves from cache", func(t *testing.T) {
		var hits int32
		server := newEngineServer(t, fakeEngine, &hits)
		cacheDir := t.TempDir()
		loader := axe.NewSourceLoader(network.NewClient(nil), cacheDir, logger)

		src, err := loader.Load(ctx, server.URL+"/axe.min.js")
		require.NoError(t, err)
		assert.Equal(t, fakeEngine, src)

		src, err = loader.Load(ctx, server.URL+"/axe.min.js")
		require.NoError(t, err)
		assert.Equal(t, fakeEngine, src)
		assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

		entries, err := os.ReadDir(cacheDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Regexp(t, `^axe-[0-9a-f-]{36}\.js$`, entries[0].Name())
	})

	t.Run("no cache dir always downloads", func(t *testing.T) {
		var hits int32
		server := newEngineServer(t, fakeEngine, &hits)
		loader := axe.NewSourceLoader(network.NewClient(nil), "", logger)

		for i := 0; i < 2; i++ {
			_, err := loader.Load(ctx, server.URL)
			require.NoError(t, err)
		}
		assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
	})

	t.Run("server error is engine unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()
		loader := axe.NewSourceLoader(network.NewClient(nil), t.TempDir(), logger)

		_, err := loader.Load(ctx, server.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, axe.ErrEngineUnavailable)
	})

	t.Run("content that is not axe is rejected", func(t *testing.T) {
		var hits int32
		server := newEngineServer(t, "<html>captive portal</html>", &hits)
		cacheDir := t.TempDir()
		loader := axe.NewSourceLoader(network.NewClient(nil), cacheDir, logger)

		_, err := loader.Load(ctx, server.URL)
		require.ErrorIs(t, err, axe.ErrEngineUnavailable)

		entries, err := os.ReadDir(cacheDir)
		require.NoError(t, err)
		assert.Empty(t, entries, "rejected content must not be cached")
	})
}

func TestSourceLoader_File(t *testing.T) {
	logger := zaptest.NewLogger(t)
	loader := axe.NewSourceLoader(nil, "", logger)

	t.Run("reads local file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "axe.min.js")
		require.NoError(t, os.WriteFile(path, []byte(fakeEngine), 0o644))

		src, err := loader.Load(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, fakeEngine, src)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "nope.js"))
		require.Error(t, err)
		assert.ErrorIs(t, err, axe.ErrEngineUnavailable)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.js")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		_, err := loader.Load(context.Background(), path)
		require.ErrorIs(t, err, axe.ErrEngineUnavailable)
	})
}
