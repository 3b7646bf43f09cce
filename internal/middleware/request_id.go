package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CtxRequestID is the fiber.Ctx locals key holding the request id.
const CtxRequestID = "request_id"

// RequestIDMiddleware propagates an inbound X-Request-ID or mints one, so
// escrow mutations can be traced across the API, worker and audit log.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals(CtxRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}
