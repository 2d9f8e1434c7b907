package network_test

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-a11y/internal/network"
)

const testBody = "window.axe = { run: function () { return Promise.resolve({violations: []}); } };"

func compressData(t *testing.T, data []byte, encoding string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	var writer io.WriteCloser

	switch encoding {
	case "gzip":
		writer = gzip.NewWriter(buf)
	case "deflate":
		writer = zlib.NewWriter(buf)
	case "raw-deflate":
		fw, err := flate.NewWriter(buf, flate.DefaultCompression)
		require.NoError(t, err)
		writer = fw
	case "br":
		writer = brotli.NewWriter(buf)
	default:
		t.Fatalf("Unsupported encoding: %s", encoding)
	}

	_, err := writer.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf.Bytes()
}

func TestCompressionMiddleware_Integration(t *testing.T) {
	testCases := []struct {
		name       string
		compressAs string
		header     string
	}{
		{"Gzip", "gzip", "gzip"},
		{"Deflate zlib", "deflate", "deflate"},
		{"Deflate raw", "raw-deflate", "deflate"},
		{"Brotli", "br", "br"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, network.AcceptEncoding, r.Header.Get("Accept-Encoding"))
				w.Header().Set("Content-Encoding", tc.header)
				_, _ = w.Write(compressData(t, []byte(testBody), tc.compressAs))
			}))
			defer server.Close()

			client := &http.Client{Transport: network.NewCompressionMiddleware(&http.Transport{DisableCompression: true})}
			resp, err := client.Get(server.URL)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, testBody, string(body))
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.True(t, resp.Uncompressed)
			assert.Equal(t, int64(-1), resp.ContentLength)
		})
	}
}

func TestCompressionMiddleware_KeepsCallerEncoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "identity", r.Header.Get("Accept-Encoding"))
		_, _ = io.WriteString(w, testBody)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "identity")

	client := &http.Client{Transport: network.NewCompressionMiddleware(nil)}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, testBody, string(body))
}

func TestDecompressResponse(t *testing.T) {
	t.Run("stacked encodings are undone in reverse", func(t *testing.T) {
		// Content-Encoding: gzip, br means gzip was applied first.
		payload := compressData(t, compressData(t, []byte(testBody), "gzip"), "br")
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"gzip, br"}},
			Body:   io.NopCloser(bytes.NewReader(payload)),
		}

		require.NoError(t, network.DecompressResponse(resp))
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, testBody, string(body))
		assert.NoError(t, resp.Body.Close())
		assert.NoError(t, resp.Body.Close(), "close is idempotent")
	})

	t.Run("identity is a no-op", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"identity"}},
			Body:   io.NopCloser(strings.NewReader(testBody)),
		}
		require.NoError(t, network.DecompressResponse(resp))
		assert.False(t, resp.Uncompressed)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"zstd"}},
			Body:   io.NopCloser(strings.NewReader(testBody)),
		}
		err := network.DecompressResponse(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported Content-Encoding layer: zstd")
	})

	t.Run("corrupt gzip header", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"gzip"}},
			Body:   io.NopCloser(strings.NewReader("not gzip at all")),
		}
		err := network.DecompressResponse(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "gzip initialization error")
	})

	t.Run("nil response", func(t *testing.T) {
		assert.NoError(t, network.DecompressResponse(nil))
	})
}
