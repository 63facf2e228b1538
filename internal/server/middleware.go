package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/convopulse/convopulse/internal/trace"
)

// TraceMiddleware opens one trace per inbound request, injects its root
// span into the request context, and closes it when the handler
// returns. The trace id is echoed in the X-Trace-ID header so clients
// can correlate log records with the exported span tree.
func TraceMiddleware(tracer *trace.Tracer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			span := tracer.StartTrace(req.Method+" "+c.Path(),
				trace.String("method", req.Method),
				trace.String("path", req.URL.Path),
			)
			ctx := trace.WithSpan(req.Context(), span)
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set("X-Trace-ID", span.TraceID())

			err := next(c)

			// On error the response is written later by the error
			// handler, so the status comes from the error itself.
			status := c.Response().Status
			if err != nil {
				_ = span.SetAttribute(trace.Bool("error", true))
				status = http.StatusInternalServerError
				var httpErr *echo.HTTPError
				if errors.As(err, &httpErr) {
					status = httpErr.Code
				}
			}
			_ = span.SetAttribute(trace.Int("status", int64(status)))
			_ = span.EndWithContext(ctx)
			return err
		}
	}
}
