package middleware

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// RequestIDHeader carries the caller-supplied request ID; a fresh UUID is
// generated when the header is empty.
const RequestIDHeader = "X-Request-ID"

// Logging returns a middleware that tags each request with an ID and logs
// method, route, client IP, status and latency.
func Logging() fiber.Handler {
	return func(c fiber.Ctx) error {
		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals(RequestIDHeader, requestID)
		c.Set(RequestIDHeader, requestID)

		start := time.Now()
		err := c.Next()

		log.Printf("request_id=%s method=%s path=%s ip=%s status=%d duration=%s",
			requestID, c.Method(), c.Path(), c.IP(), c.Response().StatusCode(), time.Since(start))

		return err
	}
}
