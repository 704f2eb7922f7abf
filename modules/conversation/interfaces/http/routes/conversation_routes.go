package routes

import (
	"chronicle/server/modules/conversation/interfaces/http/handlers"
	"chronicle/server/modules/user/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
)

// ConversationRoutes sets up the Conversation Store's HTTP surface (§6):
// listing/reading/deleting conversations, version history and
// activation, reprocessing, audio retrieval, and batch upload.
// Grounded on the teacher's MeetingRoutes shape.
type ConversationRoutes struct {
	conversationHandlers *handlers.ConversationHandlers
	uploadHandlers       *handlers.UploadHandlers
	authMiddleware       *middleware.PrincipalMiddleware
}

func NewConversationRoutes(conversationHandlers *handlers.ConversationHandlers, uploadHandlers *handlers.UploadHandlers, authMiddleware *middleware.PrincipalMiddleware) *ConversationRoutes {
	return &ConversationRoutes{
		conversationHandlers: conversationHandlers,
		uploadHandlers:       uploadHandlers,
		authMiddleware:       authMiddleware,
	}
}

// SetupProtectedRoutes mounts every endpoint behind the Principal resolver.
func (cr *ConversationRoutes) SetupProtectedRoutes(protected *gin.RouterGroup) {
	protected.Use(cr.authMiddleware.RequirePrincipal())

	conversations := protected.Group("/conversations")
	{
		conversations.GET("", cr.conversationHandlers.ListConversations)
		conversations.GET("/:id", cr.conversationHandlers.GetConversation)
		conversations.DELETE("/:id", cr.conversationHandlers.DeleteConversation)
		conversations.GET("/:id/versions", cr.conversationHandlers.GetVersions)
		conversations.POST("/:id/reprocess/transcript", cr.conversationHandlers.ReprocessTranscript)
		conversations.POST("/:id/reprocess/memory", cr.conversationHandlers.ReprocessMemory)
		conversations.POST("/:id/activate/transcript/:version_id", cr.conversationHandlers.ActivateTranscriptVersion)
		conversations.POST("/:id/activate/memory/:version_id", cr.conversationHandlers.ActivateMemoryVersion)
	}

	audio := protected.Group("/audio")
	{
		audio.GET("/get_audio/:conversation_id", cr.conversationHandlers.GetAudio)
		audio.POST("/upload", cr.uploadHandlers.UploadAudio)
	}
}
