package idempotency

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// HeaderKey is the client-supplied idempotency key header.
const HeaderKey = "x-idempotency-key"

const (
	localsKey      = "idempotency_key"
	localsEndpoint = "idempotency_endpoint"
)

// Middleware replays the cached response for a known (key, user, endpoint)
// triple and otherwise stashes the key in locals for the handler to persist
// alongside its own write. With required set, requests without the header
// are rejected.
func Middleware(store Store, required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(HeaderKey)
		if key == "" {
			if required {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "x-idempotency-key header is required",
				})
			}
			return c.Next()
		}

		userID, _ := c.Locals("user_id").(string)
		endpoint := c.Method() + " " + c.Path()

		rec, err := store.FindExisting(c.Context(), key, userID, endpoint)
		if err == nil {
			c.Set("x-idempotent-replay", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(rec.StatusCode).Send(rec.Response)
		}
		if !errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to check idempotency key",
			})
		}

		c.Locals(localsKey, key)
		c.Locals(localsEndpoint, endpoint)
		return c.Next()
	}
}

// FromContext returns the key and endpoint the middleware stashed, if any.
func FromContext(c *fiber.Ctx) (key, endpoint string, ok bool) {
	key, _ = c.Locals(localsKey).(string)
	endpoint, _ = c.Locals(localsEndpoint).(string)
	return key, endpoint, key != ""
}
