package rest

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler) {
	// Health check endpoint (no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		datasets := v1.Group("/datasets/:dataset_id")
		{
			// Lifecycle events (append-only chain)
			datasets.POST("/events", handler.RecordEvent)
			datasets.GET("/provenance", handler.GetProvenance)

			// Contributor share ledger
			datasets.PUT("/contributors", handler.SetContributors)
			datasets.GET("/contributors", handler.GetContributors)

			// Revenue distribution and royalty totals
			datasets.POST("/purchases", handler.RecordPurchase)
			datasets.GET("/royalties", handler.GetRoyalties)

			// One-way verification
			datasets.POST("/verification", handler.VerifyDataset)
		}

		// On-chain anchoring of committed records
		v1.POST("/records/:record_id/chain-tx", handler.AttachChainTx)
	}
}
