// Package web serves the bundled single-page client for every path
// the API does not claim.
package web

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// SPA returns the fallback handler for unrouted paths. Files under
// staticDir are served as-is; anything else gets index.html so the
// client's own routes deep-link correctly. Unknown API paths stay
// JSON 404s instead of leaking HTML to API consumers.
func SPA(staticDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqPath := c.Request.URL.Path

		if reqPath == "/api" || strings.HasPrefix(reqPath, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		// Resolve inside the static root; Clean keeps ".." from
		// escaping it.
		file := filepath.Join(staticDir, filepath.Clean("/"+reqPath))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			c.File(file)
			return
		}

		index := filepath.Join(staticDir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(index)
	}
}
