// Package handlers implements the Conversation Store's HTTP surface
// (§6): listing, reading, soft-deleting, reprocessing and version
// activation, plus serving a conversation's audio file. Grounded on
// `modules/meeting/interfaces/http/handlers/meeting_handlers.go`'s
// shape (a struct over one service/repository, one gin.HandlerFunc
// method per endpoint, `c.ShouldBindJSON`/`c.JSON` throughout),
// generalized from the Principal context key the teacher's user entity
// occupied to this engine's injected Principal.
package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"chronicle/server/modules/conversation"
	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/modules/conversation/domain/repositories"
	"chronicle/server/modules/conversation/interfaces/http/dtos"
	"chronicle/server/modules/user/interfaces/http/middleware"
)

// ConversationHandlers serves the Conversation Store's read/CRUD/version
// surface; the batch-upload endpoint is served by UploadHandlers.
type ConversationHandlers struct {
	Store repositories.ConversationRepository
	Jobs  conversation.JobEnqueuer
}

func NewConversationHandlers(store repositories.ConversationRepository, jobs conversation.JobEnqueuer) *ConversationHandlers {
	return &ConversationHandlers{Store: store, Jobs: jobs}
}

// ListConversations returns the authenticated caller's conversations.
// @Router /conversations [get]
func (h *ConversationHandlers) ListConversations(c *gin.Context) {
	principal, ok := middleware.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	convs, err := h.Store.FindByUser(c.Request.Context(), principal.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, dtos.ToConversationsListResponse(convs))
}

// GetConversation returns one conversation by id, enforcing ownership
// or superuser.
// @Router /conversations/{id} [get]
func (h *ConversationHandlers) GetConversation(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dtos.ToConversationResponse(conv))
}

// DeleteConversation soft-deletes the conversation and hard-deletes its
// audio files, per §6's DELETE semantics.
// @Router /conversations/{id} [delete]
func (h *ConversationHandlers) DeleteConversation(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if conv.AudioPath != "" {
		_ = os.Remove(conv.AudioPath)
	}
	if conv.CroppedAudioPath != "" {
		_ = os.Remove(conv.CroppedAudioPath)
	}
	conv.SoftDelete(entities.DeletionUserRequested)
	if err := h.Store.Save(c.Request.Context(), conv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// GetVersions returns the full transcript/memory version history.
// @Router /conversations/{id}/versions [get]
func (h *ConversationHandlers) GetVersions(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dtos.ToVersionsResponse(conv))
}

// ReprocessTranscript re-enqueues the post-processing chain starting
// from T, producing a new transcript (and downstream) version.
// @Router /conversations/{id}/reprocess/transcript [post]
func (h *ConversationHandlers) ReprocessTranscript(c *gin.Context) {
	h.reprocess(c)
}

// ReprocessMemory re-enqueues the same chain; §6 treats both reprocess
// endpoints identically at the enqueue layer — the T job handler is
// idempotent and always produces a fresh version regardless of which
// reprocess action triggered it.
// @Router /conversations/{id}/reprocess/memory [post]
func (h *ConversationHandlers) ReprocessMemory(c *gin.Context) {
	h.reprocess(c)
}

func (h *ConversationHandlers) reprocess(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if conv.Deleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation is deleted"})
		return
	}
	meta := map[string]any{"audio_uuid": conv.AudioUUID, "client_id": conv.ClientID}
	if _, err := h.Jobs.EnqueuePostProcessingChain(c.Request.Context(), conv.GetID(), meta); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue reprocessing"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "reprocessing"})
}

// ActivateTranscriptVersion flips the active transcript pointer.
// @Router /conversations/{id}/activate/transcript/{version_id} [post]
func (h *ConversationHandlers) ActivateTranscriptVersion(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := conv.SetActiveTranscriptVersion(c.Param("version_id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.Save(c.Request.Context(), conv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate version"})
		return
	}
	c.JSON(http.StatusOK, dtos.ToConversationResponse(conv))
}

// ActivateMemoryVersion flips the active memory pointer.
// @Router /conversations/{id}/activate/memory/{version_id} [post]
func (h *ConversationHandlers) ActivateMemoryVersion(c *gin.Context) {
	conv, ok := h.loadOwned(c)
	if !ok {
		return
	}
	if err := conv.SetActiveMemoryVersion(c.Param("version_id")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.Save(c.Request.Context(), conv); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate version"})
		return
	}
	c.JSON(http.StatusOK, dtos.ToConversationResponse(conv))
}

// GetAudio streams the conversation's audio file, cropped or full
// depending on the ?cropped= query flag.
// @Router /audio/get_audio/{conversation_id} [get]
func (h *ConversationHandlers) GetAudio(c *gin.Context) {
	conv, ok := h.loadOwnedByParam(c, "conversation_id")
	if !ok {
		return
	}
	path := conv.AudioPath
	if c.Query("cropped") == "true" {
		path = conv.CroppedAudioPath
	}
	if path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "audio not available"})
		return
	}
	c.File(path)
}

// loadOwned loads the conversation named by the ":id" route param and
// enforces ownership or superuser.
func (h *ConversationHandlers) loadOwned(c *gin.Context) (*entities.Conversation, bool) {
	return h.loadOwnedByParam(c, "id")
}

func (h *ConversationHandlers) loadOwnedByParam(c *gin.Context, param string) (*entities.Conversation, bool) {
	principal, ok := middleware.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	conv, err := h.Store.FindByID(c.Request.Context(), c.Param(param))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return nil, false
	}
	if conv.UserID != principal.UserID && !principal.Superuser {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return nil, false
	}
	return conv, true
}
