package handler

import (
	"mime"
	"net/http"

	"go.uber.org/zap"
)

const maxBodyBytes = 64 << 10

// JSONBodyMiddleware rejects request bodies that are not JSON and caps their size.
func JSONBodyMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength != 0 {
				mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
				if err != nil || mediaType != "application/json" {
					logger.Warn("http: unsupported content type",
						zap.String("path", r.URL.Path),
						zap.String("content_type", r.Header.Get("Content-Type")),
					)
					writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
					return
				}
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			next.ServeHTTP(w, r)
		})
	}
}
