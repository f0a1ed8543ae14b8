package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the transaction started by nrgin with the request
// id and any errors attached by handlers. It must run after nrgin.Middleware
// and RequestLogger.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		if id, ok := c.Get("request_id"); ok {
			txn.AddAttribute("request_id", id)
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
		if route := c.FullPath(); route != "" {
			txn.SetName(c.Request.Method + " " + route)
		}
	}
}
