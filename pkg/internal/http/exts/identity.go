package exts

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// IdentityHeader carries the author identity set by the gateway in front of
// this service.
const IdentityHeader = "X-Identity"

func EnsureIdentity(c *fiber.Ctx) (string, error) {
	identity := strings.TrimSpace(c.Get(IdentityHeader))
	if len(identity) == 0 {
		return "", fiber.NewError(fiber.StatusUnauthorized, "identity is required")
	}
	return identity, nil
}
