package identity

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/velomarket/auction-service/pkg/errorbank"
)

// Header carries the acting user's id, set by the API gateway after
// authentication. The service trusts it blindly; auth is out of scope here.
const Header = "X-User-ID"

// UserID extracts the acting user from the request.
func UserID(c echo.Context) (int64, error) {
	raw := c.Request().Header.Get(Header)
	if raw == "" {
		return 0, errorbank.BadRequest("missing X-User-ID header", errorbank.WithCode("identity_required"))
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid X-User-ID header", errorbank.WithCode("identity_invalid"))
	}
	return id, nil
}
