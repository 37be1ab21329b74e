package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SpanEnricher adds request metadata to the current span: the chi request ID
// so traces can be correlated with log lines, and the Fly.io edge region when
// present.
func SpanEnricher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())

		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			span.SetAttributes(attribute.String("request.id", reqID))
		}
		if region := r.Header.Get("Fly-Region"); region != "" {
			span.SetAttributes(attribute.String("fly.region", region))
		}

		next.ServeHTTP(w, r)
	})
}
