package mirrord

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/openmined/gitmirror/internal/gitsync"
	"github.com/openmined/gitmirror/internal/mirror"
)

// treeSource is what the handlers need from the daemon: the tree root and
// the sync loop's status.
type treeSource interface {
	Root() *mirror.Node
	Status() gitsync.Status
}

func setupRoutes(src treeSource) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(sloggin.New(slog.Default()))
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	h := &treeHandler{src: src}
	v1 := r.Group("/v1")
	{
		v1.GET("/status", h.Status)
		v1.GET("/tree/*path", h.Tree)
		v1.GET("/blob/*path", h.Blob)
	}
	return r
}
