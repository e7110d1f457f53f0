package admin

import (
	"net/http"

	"github.com/rs/zerolog"
)

// Option configures the admin handler.
type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (f optionFunc) apply(c *config) { f(c) }

type config struct {
	middleware   []func(http.Handler) http.Handler
	logger       *zerolog.Logger
	defaultLimit int
}

// WithMiddleware wraps every route with mw (auth, request logging and so on).
// Middleware runs in the order given.
func WithMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return optionFunc(func(c *config) {
		c.middleware = append(c.middleware, mw...)
	})
}

// WithLogger sets the logger used to report storage errors.
func WithLogger(l zerolog.Logger) Option {
	return optionFunc(func(c *config) {
		c.logger = &l
	})
}

// WithDefaultLimit sets how many failed jobs GET /jobs/failed returns when
// the request has no limit parameter.
func WithDefaultLimit(n int) Option {
	return optionFunc(func(c *config) {
		if n > 0 {
			c.defaultLimit = n
		}
	})
}
