package apperrors

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const correlationKey = "correlation_id"

// CorrelationMiddleware assigns every request a correlation id, echoed
// on responses so failures are traceable end-to-end.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(correlationKey, id)
		c.Writer.Header().Set("X-Correlation-Id", id)
		c.Next()
	}
}

// CorrelationID returns the request's correlation id.
func CorrelationID(c *gin.Context) string {
	return c.GetString(correlationKey)
}

type errorBody struct {
	Code          string    `json:"code"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlationId"`
	Detail        string    `json:"detail,omitempty"`
	Upstream      *Upstream `json:"upstream,omitempty"`
}

// Respond writes the failure envelope and logs the error with its
// correlation id. Always logs before writing.
func Respond(c *gin.Context, err error) {
	ae := From(err)
	cid := CorrelationID(c)
	log.Printf("[%s] %s %s failed: %v", cid, c.Request.Method, c.Request.URL.Path, ae)

	c.JSON(HTTPStatus(ae.Code), gin.H{
		"ok": false,
		"error": errorBody{
			Code:          ae.Code,
			Message:       ae.Message,
			CorrelationID: cid,
			Detail:        ae.Detail,
			Upstream:      ae.Upstream,
		},
	})
}

// OK writes the success envelope.
func OK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"ok": true, "data": data})
}
