package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// decompressMiddleware handles decompression of request bodies based on the
// Content-Encoding header. Supports zstd and br; a missing header passes
// through uncompressed.
func decompressMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := r.Header.Get("Content-Encoding")

			// No compression, pass through
			if encoding == "" {
				next.ServeHTTP(w, r)
				return
			}

			switch {
			case strings.EqualFold(encoding, "zstd"):
				decoder, err := zstd.NewReader(r.Body)
				if err != nil {
					respondError(w, http.StatusBadRequest, "Failed to create zstd decoder")
					return
				}
				defer decoder.Close()
				r.Body = io.NopCloser(decoder)

			case strings.EqualFold(encoding, "br"):
				r.Body = io.NopCloser(brotli.NewReader(r.Body))

			default:
				respondError(w, http.StatusUnsupportedMediaType,
					"Unsupported Content-Encoding: "+encoding)
				return
			}

			// Downstream handlers see uncompressed data; the declared length
			// no longer applies.
			r.Header.Del("Content-Encoding")
			r.Header.Del("Content-Length")
			r.ContentLength = -1

			next.ServeHTTP(w, r)
		})
	}
}
