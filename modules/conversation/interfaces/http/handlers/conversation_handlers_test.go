package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/server/modules/conversation/domain/entities"
	"chronicle/server/modules/conversation/infrastructure/repositories"
	"chronicle/server/modules/conversation/interfaces/http/dtos"
	"chronicle/server/modules/user/interfaces/http/middleware"
)

type fakeJobEnqueuer struct {
	enqueued []string
}

func (f *fakeJobEnqueuer) EnqueuePostProcessingChain(ctx context.Context, conversationID string, meta map[string]any) (map[string]string, error) {
	f.enqueued = append(f.enqueued, conversationID)
	return map[string]string{"transcribe_batch": "job-t", "speaker_recognize": "job-s", "memory_extract": "job-m"}, nil
}
func (f *fakeJobEnqueuer) SelfZombied(ctx context.Context, jobID string) (bool, error) { return false, nil }
func (f *fakeJobEnqueuer) UpdateMeta(ctx context.Context, jobID string, meta map[string]any) error {
	return nil
}
func (f *fakeJobEnqueuer) RearmSpeechDetection(ctx context.Context, sessionID string) error {
	return nil
}

func newTestRouter(store *repositories.MemoryConversationRepository, jobs *fakeJobEnqueuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewConversationHandlers(store, jobs)
	resolver := middleware.NewHeaderResolver()
	auth := middleware.NewPrincipalMiddleware(resolver)

	r := gin.New()
	protected := r.Group("/")
	protected.Use(auth.RequirePrincipal())
	protected.GET("/conversations", h.ListConversations)
	protected.GET("/conversations/:id", h.GetConversation)
	protected.DELETE("/conversations/:id", h.DeleteConversation)
	protected.GET("/conversations/:id/versions", h.GetVersions)
	protected.POST("/conversations/:id/reprocess/transcript", h.ReprocessTranscript)
	protected.POST("/conversations/:id/activate/transcript/:version_id", h.ActivateTranscriptVersion)
	return r
}

func newOwnedConversation(store *repositories.MemoryConversationRepository, userID string) *entities.Conversation {
	c := entities.New("sess-1", userID, "client-1")
	_ = c.AddTranscriptVersion(entities.TranscriptVersion{Transcript: "hello world"}, true)
	_ = store.Insert(context.Background(), c)
	return c
}

func TestListConversations_RequiresPrincipal(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	r := newTestRouter(store, &fakeJobEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListConversations_ReturnsOnlyCallersConversations(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	newOwnedConversation(store, "user-1")
	newOwnedConversation(store, "user-2")
	r := newTestRouter(store, &fakeJobEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	req.Header.Set("X-Chronicle-User-Id", "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dtos.ConversationsListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "hello world", resp.Conversations[0].Transcript)
}

func TestGetConversation_ForbiddenForNonOwner(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	c := newOwnedConversation(store, "user-1")
	r := newTestRouter(store, &fakeJobEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/conversations/"+c.GetID(), nil)
	req.Header.Set("X-Chronicle-User-Id", "user-2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetConversation_AllowedForSuperuser(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	c := newOwnedConversation(store, "user-1")
	r := newTestRouter(store, &fakeJobEnqueuer{})

	req := httptest.NewRequest(http.MethodGet, "/conversations/"+c.GetID(), nil)
	req.Header.Set("X-Chronicle-User-Id", "admin")
	req.Header.Set("X-Chronicle-Superuser", "true")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeleteConversation_SoftDeletesWithUserRequestedReason(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	c := newOwnedConversation(store, "user-1")
	r := newTestRouter(store, &fakeJobEnqueuer{})

	req := httptest.NewRequest(http.MethodDelete, "/conversations/"+c.GetID(), nil)
	req.Header.Set("X-Chronicle-User-Id", "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	saved, err := store.FindByID(context.Background(), c.GetID())
	require.NoError(t, err)
	assert.True(t, saved.Deleted)
	assert.Equal(t, entities.DeletionUserRequested, saved.DeletionReason)
}

func TestReprocessTranscript_EnqueuesChain(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	c := newOwnedConversation(store, "user-1")
	jobs := &fakeJobEnqueuer{}
	r := newTestRouter(store, jobs)

	req := httptest.NewRequest(http.MethodPost, "/conversations/"+c.GetID()+"/reprocess/transcript", nil)
	req.Header.Set("X-Chronicle-User-Id", "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{c.GetID()}, jobs.enqueued)
}

func TestActivateTranscriptVersion_UnknownVersionRejected(t *testing.T) {
	store := repositories.NewMemoryConversationRepository()
	c := newOwnedConversation(store, "user-1")
	r := newTestRouter(store, &fakeJobEnqueuer{})

	req := httptest.NewRequest(http.MethodPost, "/conversations/"+c.GetID()+"/activate/transcript/does-not-exist", nil)
	req.Header.Set("X-Chronicle-User-Id", "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
