package api

import (
	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/gin-gonic/gin"
)

// respondError writes the {"error": "<message>"} body spec §6.1 requires,
// mapping err's apperror.Kind to the status table in §7.
func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(apperror.KindOf(err))
	c.JSON(status, gin.H{"error": err.Error()})
}
