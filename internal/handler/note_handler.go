package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/homedash/internal/middleware"
	"github.com/hitoshi/homedash/internal/model"
)

// maxNoteBodyBytes はメモ作成リクエストボディの上限。
const maxNoteBodyBytes = 1 << 20

// NoteServiceInterface はメモハンドラーが必要とするサービスインターフェース。
type NoteServiceInterface interface {
	ListNotes(ctx context.Context, identity *model.Identity) ([]*model.Note, error)
	CreateNote(ctx context.Context, identity *model.Identity, text string) (*model.Note, error)
}

// NoteRecorder はメモ作成の記録先。
type NoteRecorder interface {
	RecordNoteCreated()
}

// NoteHandler はメモのHTTPハンドラー。
type NoteHandler struct {
	service  NoteServiceInterface
	recorder NoteRecorder
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface, recorder NoteRecorder) *NoteHandler {
	return &NoteHandler{
		service:  service,
		recorder: recorder,
	}
}

// createNoteRequest はメモ作成リクエストのボディ。
// id、ownerEmail、createdAtが含まれていても無視する。
type createNoteRequest struct {
	Text string `json:"text"`
}

// ListNotes は呼び出し元のメモを新しい順に返す。
// GET /api/notes
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteProblem(w, model.NewUnauthorizedError())
		return
	}

	notes, err := h.service.ListNotes(r.Context(), identity)
	if err != nil {
		slog.Error("failed to list notes",
			slog.String("email", identity.Email),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusOK, notes)
}

// CreateNote は呼び出し元を所有者としてメモを作成する。
// POST /api/notes
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.WriteProblem(w, model.NewUnauthorizedError())
		return
	}

	var req createNoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNoteBodyBytes)).Decode(&req); err != nil {
		middleware.WriteProblem(w, model.NewInvalidRequestBodyError(err.Error()))
		return
	}

	n, err := h.service.CreateNote(r.Context(), identity, req.Text)
	if err != nil {
		slog.Error("failed to create note",
			slog.String("email", identity.Email),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	h.recorder.RecordNoteCreated()
	slog.Debug("note created", slog.Int64("note_id", n.ID), slog.String("email", identity.Email))

	w.Header().Set("Location", "/api/notes/"+strconv.FormatInt(n.ID, 10))
	writeJSON(w, http.StatusCreated, n)
}
