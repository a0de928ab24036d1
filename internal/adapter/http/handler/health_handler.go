package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"secure-withdrawal-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

type dependencyHealth struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// HealthCheck handles GET /health. Dependencies are probed concurrently
// under one timeout; any failure turns the report into 503 "degraded".
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			healthy = true
			report  = make(map[string]dependencyHealth, len(checkers))
		)
		for _, checker := range checkers {
			wg.Add(1)
			go func(checker ports.HealthChecker) {
				defer wg.Done()
				start := time.Now()
				err := checker.Ping(ctx)
				dep := dependencyHealth{Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
				if err != nil {
					dep.Status = "unhealthy"
					dep.Error = err.Error()
				}

				mu.Lock()
				defer mu.Unlock()
				report[checker.Name()] = dep
				if err != nil {
					healthy = false
				}
			}(checker)
		}
		wg.Wait()

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":       status,
			"checked_at":   time.Now().UTC().Format(time.RFC3339),
			"dependencies": report,
		})
	}
}
