package mirrord

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/openmined/gitmirror/internal/mirror"
)

type treeHandler struct {
	src treeSource
}

// nodeView is the wire shape of a node. Children are included one level
// deep for directories; consumers walk the tree path by path.
type nodeView struct {
	Name     string     `json:"name"`
	Path     string     `json:"path"`
	Kind     string     `json:"kind"`
	Size     int64      `json:"size,omitempty"`
	Digest   string     `json:"digest,omitempty"`
	Children []nodeView `json:"children,omitempty"`
}

func (h *treeHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.src.Status())
}

func (h *treeHandler) Tree(c *gin.Context) {
	node, ok := h.resolve(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(node, true))
}

func (h *treeHandler) Blob(c *gin.Context) {
	node, ok := h.resolve(c)
	if !ok {
		return
	}
	data, err := node.Data()
	if err != nil {
		abortResolveError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (h *treeHandler) resolve(c *gin.Context) (*mirror.Node, bool) {
	rel := strings.TrimPrefix(c.Param("path"), "/")
	node, err := h.src.Root().Resolve(rel)
	if err != nil {
		abortResolveError(c, err)
		return nil, false
	}
	return node, true
}

func abortResolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, mirror.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, mirror.ErrInvalidOperation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func viewOf(n *mirror.Node, withChildren bool) nodeView {
	v := nodeView{
		Name: n.Name(),
		Path: n.RelPath(),
		Kind: n.Kind().String(),
	}
	if n.Kind() == mirror.KindFile {
		v.Size, _ = n.Size()
		v.Digest, _ = n.Digest()
		return v
	}
	if withChildren {
		children, _ := n.Children()
		for _, child := range children {
			v.Children = append(v.Children, viewOf(child, false))
		}
	}
	return v
}
