package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/madhatter5501/taskboard"
	"github.com/madhatter5501/taskboard/kanban"

	"github.com/go-chi/chi/v5"
)

// --- Boards ---

// apiGetBoard returns the aggregated board view.
func (s *Server) apiGetBoard(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.GetBoardView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

// apiListBoards returns every board.
func (s *Server) apiListBoards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.svc.ListBoards(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, boards)
}

// apiCreateBoard creates a new board.
func (s *Server) apiCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req taskboard.BoardInput
	if !s.decode(w, r, &req) {
		return
	}

	board, err := s.svc.CreateBoard(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Broadcast("board-created", board.ID)
	s.jsonResponse(w, http.StatusCreated, board)
}

// apiRepairBoard renumbers a board's columns and cards.
func (s *Server) apiRepairBoard(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.RepairBoard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if result.Renumbered() > 0 {
		s.Broadcast("board-update", chi.URLParam(r, "id"))
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// --- Cards ---

// cardResponse adds the rendered description to a card.
type cardResponse struct {
	*kanban.Card
	DescriptionHTML string `json:"descriptionHtml"`
}

// apiGetCard returns a single card by ID.
func (s *Server) apiGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.svc.GetCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, cardResponse{
		Card:            card,
		DescriptionHTML: renderMarkdown(card.Description),
	})
}

// apiCreateCard creates a card at the end of its column.
func (s *Server) apiCreateCard(w http.ResponseWriter, r *http.Request) {
	var req taskboard.CardInput
	if !s.decode(w, r, &req) {
		return
	}

	card, err := s.svc.CreateCard(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Broadcast("card-created", card.BoardID)
	s.jsonResponse(w, http.StatusCreated, card)
}

// apiUpdateCard merges the request into a card's metadata.
func (s *Server) apiUpdateCard(w http.ResponseWriter, r *http.Request) {
	var req taskboard.CardUpdate
	if !s.decode(w, r, &req) {
		return
	}

	card, err := s.svc.UpdateCard(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Broadcast("card-updated", card.BoardID)
	s.jsonResponse(w, http.StatusOK, card)
}

// moveResponse is the body returned by a successful move.
type moveResponse struct {
	Message string      `json:"message"`
	Card    kanban.Card `json:"card"`
}

// apiMoveCard moves a card within or across columns.
func (s *Server) apiMoveCard(w http.ResponseWriter, r *http.Request) {
	var req taskboard.MoveRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.svc.MoveCard(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.metrics.move(result.SameColumn)
	s.Broadcast("card-moved", result.Card.BoardID)
	s.jsonResponse(w, http.StatusOK, moveResponse{
		Message: result.Message(),
		Card:    result.Card,
	})
}

// apiDeleteCard deletes a card and compacts its column.
func (s *Server) apiDeleteCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.svc.DeleteCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Broadcast("card-deleted", card.BoardID)
	s.jsonResponse(w, http.StatusOK, map[string]string{"message": "Card deleted"})
}

// --- Columns ---

// apiCreateColumn appends a column to the board named in the path.
func (s *Server) apiCreateColumn(w http.ResponseWriter, r *http.Request) {
	var req taskboard.ColumnInput
	if !s.decode(w, r, &req) {
		return
	}
	req.BoardID = chi.URLParam(r, "id")

	column, err := s.svc.CreateColumn(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Broadcast("column-created", column.BoardID)
	s.jsonResponse(w, http.StatusCreated, column)
}

// apiListColumns lists columns, optionally for one board.
func (s *Server) apiListColumns(w http.ResponseWriter, r *http.Request) {
	columns, err := s.svc.ListColumns(r.Context(), r.URL.Query().Get("boardId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, columns)
}

// apiCheckColumn reports on a column's card positions.
func (s *Server) apiCheckColumn(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.CheckColumn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// apiRepairColumn renumbers a column's cards.
func (s *Server) apiRepairColumn(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.RepairColumn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// --- Labels ---

// apiListLabels lists every label.
func (s *Server) apiListLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.svc.ListLabels(r.Context(), "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, labels)
}

// apiListBoardLabels lists the labels visible on a board.
func (s *Server) apiListBoardLabels(w http.ResponseWriter, r *http.Request) {
	labels, err := s.svc.ListLabels(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, labels)
}

// apiCreateLabel finds or creates a label by name.
func (s *Server) apiCreateLabel(w http.ResponseWriter, r *http.Request) {
	var req taskboard.LabelInput
	if !s.decode(w, r, &req) {
		return
	}

	label, err := s.svc.FindOrCreateLabel(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, label)
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Helpers ---

// decode reads a JSON request body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps a service error to a status code. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, kanban.ErrValidation):
		s.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, kanban.ErrNotFound):
		s.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("Request aborted", "method", r.Method, "path", r.URL.Path, "error", err)
		s.jsonError(w, "Request cancelled", http.StatusServiceUnavailable)
	default:
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// jsonResponse writes a JSON response with the given status.
func (s *Server) jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// jsonError writes a JSON error response.
func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
