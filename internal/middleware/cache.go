package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CacheControl marks successful GETs of public data as cacheable for maxAge
// seconds. Everything else is no-store since responses may carry personal
// data or session tokens.
func CacheControl(maxAge int) gin.HandlerFunc {
	public := "public, max-age=" + strconv.Itoa(maxAge)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Header("Cache-Control", public)
		} else {
			c.Header("Cache-Control", "no-store")
		}
		c.Next()
	}
}

// NoStore is applied to every private route group.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
