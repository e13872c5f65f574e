package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"trust-accounting-backend/internal/apperr"
)

// respondError maps the error taxonomy onto HTTP statuses. Anything
// unclassified (including invariant violations) is a 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindStateConflict:
		status = http.StatusConflict
	case apperr.KindAuthorization:
		status = http.StatusForbidden
	case apperr.KindPolicy:
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// actorFrom requires the authenticated principal header the platform's
// gateway injects. Without it no trust operation can be attributed.
func actorFrom(c *gin.Context) (string, bool) {
	actor := c.GetHeader("X-Actor-Id")
	if actor == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-Actor-Id header required"})
		return "", false
	}
	return actor, true
}
