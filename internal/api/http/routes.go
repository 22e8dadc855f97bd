package http

import "github.com/gin-gonic/gin"

// Register mounts every handler on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	r.GET("/classify", h.Classify)
	r.GET("/resolve", h.Resolve)

	viewers := r.Group("/viewers")
	{
		viewers.POST("", h.CreateViewer)
		viewers.GET("", h.ListViewers)
		viewers.GET("/:id", h.GetViewer)
		viewers.DELETE("/:id", h.DeleteViewer)
		viewers.POST("/:id/load", h.LoadViewer)
		viewers.POST("/:id/retry", h.RetryViewer)
		viewers.POST("/:id/zoom", h.Zoom)
		viewers.POST("/:id/rotate", h.Rotate)
		viewers.POST("/:id/page", h.Page)
		viewers.POST("/:id/mode", h.Mode)
		viewers.POST("/:id/resize", h.Resize)
		viewers.GET("/:id/pages/:page", h.PageImage)
	}
}
