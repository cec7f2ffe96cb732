package middleware

import (
	"errors"
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/prompt-playground/internal/common"
)

// Recovery turns a panic into a 500 envelope. http.ErrAbortHandler is
// re-raised so net/http drops the connection without a reply.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			log.Printf("[recovery] panic request_id=%s path=%s err=%v\n%s", c.GetString(RequestIDKey), c.Request.URL.Path, rec, debug.Stack())
			c.Abort()
			if !c.Writer.Written() {
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
			}
		}()
		c.Next()
	}
}
