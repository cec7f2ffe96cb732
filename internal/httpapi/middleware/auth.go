package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/prompt-playground/internal/auth"
	"github.com/suPer8Hu/prompt-playground/internal/common"
)

const SubjectKey = "subject"

// AuthRequired checks the bearer token. An empty secret disables the check.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			c.Abort()
			return
		}
		sub, err := auth.ParseJWT(secret, strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			c.Abort()
			return
		}
		c.Set(SubjectKey, sub)
		c.Next()
	}
}
