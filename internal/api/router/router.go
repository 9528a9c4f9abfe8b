package router

import (
	"github.com/gin-gonic/gin"

	"github.com/windingtree/orgid-migrator/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, corsOrigins []string) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(corsOrigins))

	// Health check endpoint
	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.GetHealth)

	requestHandler := handler.NewRequestHandler(deps)
	orgIDHandler := handler.NewOrgIDHandler(deps)
	fileHandler := handler.NewFileHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		requests := v1.Group("/requests")
		{
			// POST /api/v1/requests - Queue a migration request
			requests.POST("", requestHandler.CreateRequest)

			// GET /api/v1/requests/did/:did - Migration status of a DID
			requests.GET("/did/:did", requestHandler.GetRequestByDID)

			// GET /api/v1/requests/:id - Migration status by job id
			requests.GET("/:id", requestHandler.GetRequest)
		}

		// GET /api/v1/dids/:owner - Identities owned by an address
		v1.GET("/dids/:owner", orgIDHandler.GetOwned)

		files := v1.Group("/files")
		{
			// POST /api/v1/files - Publish an uploaded file
			files.POST("", fileHandler.UploadFile)

			// POST /api/v1/files/uri - Fetch and publish an image by URI
			files.POST("/uri", fileHandler.UploadFileByURI)
		}

		// POST /api/v1/admin/reset - Destroy queue and index state
		v1.POST("/admin/reset", requestHandler.Reset)
	}

	return r
}
