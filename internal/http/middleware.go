package httpx

import (
	"log"
	"net/http"
	"time"

	"blogclient/internal/auth"
	"blogclient/internal/util"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const CookieName = "token"

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Lee la cookie
		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		// Valida token y sesión en BD
		p, err := s.Tokens.Verify(r.Context(), s.DB, c.Value)
		if err != nil {
			log.Printf("session FAIL err=%v", err)
			next.ServeHTTP(w, r)
			return
		}
		r = r.WithContext(auth.WithPrincipal(r.Context(), p))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFrom(r.Context()); !ok {
			util.Fail(w, http.StatusUnauthorized, CodeUnauthorized, "Authentication required")
			return
		}
		next(w, r)
	})
}

// --- access log ---

type statusRW struct {
	http.ResponseWriter
	status int
}

func (w *statusRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// WithAccessLog envuelve un handler y loguea METHOD PATH -> STATUS (duración) [request id]
func WithAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rid := r.Header.Get("X-Request-ID")
		if rid != "" {
			w.Header().Set("X-Request-ID", rid)
		}
		sw := &statusRW{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		log.Printf("%s %s -> %d (%s) rid=%s", r.Method, r.URL.Path, sw.status, time.Since(start).Truncate(time.Millisecond), rid)
	})
}

// WithTrace continues the caller's trace and opens one server span per request.
func WithTrace(next http.Handler) http.Handler {
	tracer := otel.Tracer("blogclient/internal/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithTimeout aplica un timeout a la request completa
func WithTimeout(next http.Handler, d time.Duration) http.Handler {
	if d <= 0 {
		d = 5 * time.Second
	}
	return http.TimeoutHandler(next, d, `{"success":false,"code":"TIMEOUT","message":"request timeout"}`)
}
