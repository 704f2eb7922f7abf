package routes

import (
	"chronicle/server/modules/transcription/interfaces/http/handlers"
	"chronicle/server/modules/user/interfaces/http/middleware"

	"github.com/gin-gonic/gin"
)

// TranscriptionRoutes sets up the duplex audio protocol route (§6),
// following the teacher's MeetingRoutes shape (a struct holding its
// handlers and auth middleware, a SetupProtectedRoutes method applying
// the middleware before grouping endpoints).
type TranscriptionRoutes struct {
	duplexHandlers *handlers.DuplexHandlers
	authMiddleware *middleware.PrincipalMiddleware
}

func NewTranscriptionRoutes(duplexHandlers *handlers.DuplexHandlers, authMiddleware *middleware.PrincipalMiddleware) *TranscriptionRoutes {
	return &TranscriptionRoutes{
		duplexHandlers: duplexHandlers,
		authMiddleware: authMiddleware,
	}
}

// SetupProtectedRoutes mounts the duplex websocket endpoint behind the
// Principal resolver; the websocket upgrade itself happens inside
// HandleDuplexAudio once the caller is resolved.
func (tr *TranscriptionRoutes) SetupProtectedRoutes(protected *gin.RouterGroup) {
	protected.Use(tr.authMiddleware.RequirePrincipal())
	protected.GET("/ws/audio", tr.duplexHandlers.HandleDuplexAudio)
}
