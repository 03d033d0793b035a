package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = NotFoundJSON()

	// Prometheus scrape endpoint, outside auth and JSON middleware
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("")
	api.Use(SetJSONContentType) // Ensure all responses are JSON
	api.Use(SetNoCacheHeaders)  // Prevent caching of API responses

	// Optional API key authentication
	if cfg.APIKey != "" {
		api.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key", // Look for API key in X-API-Key header
			Skipper: func(c echo.Context) bool {
				return strings.HasSuffix(c.Path(), "/health")
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil // Simple string comparison
			},
		}))
	}

	// API v1 routes
	v1 := api.Group("/v1")
	v1.GET("/health", h.Health)                          // Health check endpoint
	v1.GET("/context/:owner", h.Context)                 // Owner fee context
	v1.POST("/context/:owner/refresh", h.RefreshContext) // Force fee context refetch
	v1.GET("/routes", h.Routes)                          // Route search and pricing
	v1.GET("/pools", h.PoolsList)                        // Current pool snapshot
	v1.GET("/pools/:id/history", h.PoolHistory)          // Stored reserve history
	v1.POST("/fees/calculate", h.CalculateFee)           // Fee for an operation
	v1.POST("/fees/topup", h.TopUp)                      // Needed relay account top-up

	// Relay endpoints with rate limiting
	relayGroup := v1.Group("/relay")
	if cfg.RelayRateLimit > 0 {
		burst := cfg.RelayBurst
		if burst < 1 {
			burst = 1
		}
		relayGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.RelayRateLimit),
			Burst:     burst,
			ExpiresIn: 2 * time.Minute, // Rate limit window
		})))
	}
	relayGroup.POST("/prepare", h.PrepareRelay) // Unsigned relay transactions

	// Operator switches, only when a flag store is configured
	if h.Flags != nil {
		flagGroup := v1.Group("/flags")
		flagGroup.GET("", h.FlagsList)           // List all switches
		flagGroup.POST("", h.FlagsUpsert)        // Create or set a switch
		flagGroup.GET("/:key", h.FlagsGet)       // Get specific switch
		flagGroup.PUT("/:key", h.FlagsUpdate)    // Update existing switch
		flagGroup.DELETE("/:key", h.FlagsDelete) // Delete switch
	}

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
