package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/receiptwise/alerting-backend-go/pkg/errors"
	"github.com/receiptwise/alerting-backend-go/pkg/utils"
)

// ErrorHandlingMiddleware recovers from panics and converts collected
// gin errors into the standard error response envelope.
func ErrorHandlingMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"panic":  recovered,
			"stack":  string(debug.Stack()),
		}).Error("Panic recovered in request handler")

		utils.SendError(c, http.StatusInternalServerError, "Internal server error")
		c.Abort()
	})
}

// ErrorResponseMiddleware translates errors attached to the context into
// a response if the handler did not write one itself.
func ErrorResponseMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := errors.GetStatusCode(err)
		logger.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": status,
		}).Warn("Request failed")

		utils.SendError(c, status, err.Error())
	}
}
