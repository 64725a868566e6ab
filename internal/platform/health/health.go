// Package health serves the liveness endpoint from a set of named probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Check is a named dependency probe. Probe returns optional detail to report
// alongside the result.
type Check struct {
	Name  string
	Probe func(ctx context.Context) (interface{}, error)
}

type result struct {
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
	Detail interface{} `json:"detail,omitempty"`
}

// Handler runs every check with a shared timeout. Any failing check turns
// the response into 503.
func Handler(timeout time.Duration, checks ...Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		healthy := true
		results := make(map[string]result, len(checks))
		for _, chk := range checks {
			detail, err := chk.Probe(ctx)
			r := result{Status: "healthy", Detail: detail}
			if err != nil {
				healthy = false
				r.Status = "unhealthy"
				r.Error = err.Error()
			}
			results[chk.Name] = r
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		return c.JSON(code, map[string]interface{}{
			"status": status,
			"checks": results,
		})
	}
}
