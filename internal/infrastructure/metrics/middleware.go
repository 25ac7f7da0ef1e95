package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
)

// EchoMiddleware returns an echo middleware that records metrics for each HTTP request.
func EchoMiddleware(collector *Collector, exporter *PrometheusExporter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			route := c.Request().Method + " " + c.Path()

			err := next(c)

			collector.RecordRequest(route)
			collector.RecordDuration(route, time.Since(start).Seconds())

			code := c.Response().Status
			if err != nil {
				collector.RecordError(route)
				if he, ok := err.(*echo.HTTPError); ok {
					code = he.Code
				} else {
					code = 500
				}
			}
			if exporter != nil {
				exporter.RecordHTTPRequest(c.Request().Method, c.Path(), code)
			}
			return err
		}
	}
}
