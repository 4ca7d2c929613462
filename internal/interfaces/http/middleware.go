package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/purchase-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/purchase-workflow/internal/domain/workflow"
)

// Identity headers set by the authenticating proxy in front of the service
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	HeaderUserName = "X-User-Name"
)

const actorKey = "actor"

// actorMiddleware resolves the acting user from the identity headers
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		role := strings.TrimSpace(c.GetHeader(HeaderUserRole))
		if id == "" || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "missing identity headers",
			})
			return
		}

		actor := entity.Actor{
			ID:   id,
			Name: strings.TrimSpace(c.GetHeader(HeaderUserName)),
			Role: domainwf.Role(strings.ToLower(role)),
		}
		if !actor.Role.IsValid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   "unknown role " + strconv.Quote(role),
			})
			return
		}
		if actor.Name == "" {
			actor.Name = actor.ID
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) (entity.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return entity.Actor{}, false
	}
	actor, ok := v.(entity.Actor)
	return actor, ok
}

// expectedVersion parses the optional If-Match header. Accepts 3, "3" and W/"3".
func expectedVersion(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" || raw == "*" {
		return 0, true
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// setETag exposes the request version for the next If-Match
func setETag(c *gin.Context, version int64) {
	c.Header("ETag", strconv.Quote(strconv.FormatInt(version, 10)))
}
