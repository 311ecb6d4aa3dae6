package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine with CORS and all routes registered.
func NewRouter(handler *Handler, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", handler.Health)

	v1 := router.Group("/api/v1")
	{
		dicomGroup := v1.Group("/dicom")
		{
			dicomGroup.GET("/echo", handler.Echo)
			dicomGroup.POST("/upload", handler.Upload)
			dicomGroup.GET("/studies", handler.ListStudies)
			dicomGroup.GET("/studies/:uid", handler.GetStudy)
			dicomGroup.GET("/instances", handler.GetInstances)
		}
	}

	return router
}
