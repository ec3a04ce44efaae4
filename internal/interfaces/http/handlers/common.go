// Package handlers implements the HTTP API surface over the caseops service.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/caselight/caselight/pkg/errors"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respond writes the success envelope.
func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"data": data})
}

// respondError maps an error to its HTTP status via the application error
// code.  Unknown codes fall through to 500 with the underlying message
// masked.
func respondError(c *gin.Context, err error) {
	code := apperrors.GetCode(err)
	status := apperrors.HTTPStatusForCode(code)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = apperrors.DefaultMessageForCode(code)
	}

	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{
		Code:    code.String(),
		Message: message,
	}})
}

// queryInt reads an integer query parameter, returning def when absent or
// unparsable.
func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
