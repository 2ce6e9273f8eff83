package server

import (
	"net/http"
	"strconv"

	"guess-the-drop/internal/db"
	"guess-the-drop/internal/game"
)

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		TemplateID uint   `json:"template_id"`
		Name       string `json:"name"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := s.engine.CreateGame(r.Context(), user, game.CreateGameParams{
		TemplateID: req.TemplateID,
		Name:       req.Name,
	})
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"game_code": created.GameCode,
	})
}

func (s *Server) handleGameSummaries(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	hosted, err := s.store.HostedSummaries(r.Context(), user.UserID)
	if err != nil {
		writeActionError(w, err)
		return
	}
	joined, err := s.store.JoinedSummaries(r.Context(), user.UserID)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hosted": hosted,
		"joined": joined,
	})
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	code := r.PathValue("code")
	// Opening a room is the implicit join.
	if _, err := s.engine.Join(r.Context(), code, user); err != nil {
		writeActionError(w, err)
		return
	}
	board, err := s.buildBoard(r.Context(), code, user)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if _, err := s.engine.Join(r.Context(), r.PathValue("code"), user); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		ItemID uint `json:"item_id"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.SubmitGuess(r.Context(), r.PathValue("code"), user, req.ItemID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "guessed"})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	s.handleSetLocked(w, r, true)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.handleSetLocked(w, r, false)
}

func (s *Server) handleSetLocked(w http.ResponseWriter, r *http.Request, locked bool) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := s.engine.SetLocked(r.Context(), r.PathValue("code"), user, locked); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"locked": locked})
}

func (s *Server) handleClearGuesses(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if err := s.engine.ClearGuesses(r.Context(), r.PathValue("code"), user); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	winners, err := s.engine.Finish(r.Context(), r.PathValue("code"), user)
	if err != nil {
		writeActionError(w, err)
		return
	}
	names := make([]string, 0, len(winners))
	for _, winner := range winners {
		names = append(names, winner.Username)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "finished",
		"winners": names,
	})
}

func (s *Server) handleEnableItem(w http.ResponseWriter, r *http.Request) {
	s.handleSetItemEnabled(w, r, true)
}

func (s *Server) handleDisableItem(w http.ResponseWriter, r *http.Request) {
	s.handleSetItemEnabled(w, r, false)
}

func (s *Server) handleSetItemEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}
	if err := s.engine.SetItemEnabled(r.Context(), r.PathValue("code"), user, itemID, enabled); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) handleChooseItem(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}
	if err := s.engine.ChooseItem(r.Context(), r.PathValue("code"), user, itemID); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "chosen"})
}

func parseItemID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := r.PathValue("item")
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return uint(value), true
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	templates, err := s.store.TemplatesByUser(r.Context(), user.UserID)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Name               string  `json:"name"`
		AutoLock           bool    `json:"auto_lock"`
		RewardMessage      *string `json:"reward_message"`
		TotalRewardMessage *string `json:"total_reward_message"`
		Items              []struct {
			Name         string  `json:"name"`
			Image        *string `json:"image"`
			StartEnabled *bool   `json:"start_enabled"`
		} `json:"items"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	items := make([]db.GameItemTemplate, 0, len(req.Items))
	for _, item := range req.Items {
		enabled := true
		if item.StartEnabled != nil {
			enabled = *item.StartEnabled
		}
		items = append(items, db.GameItemTemplate{
			Name:         item.Name,
			Image:        item.Image,
			StartEnabled: enabled,
		})
	}
	template, err := s.engine.CreateTemplate(r.Context(), user, game.CreateTemplateParams{
		Name:               req.Name,
		AutoLock:           req.AutoLock,
		RewardMessage:      req.RewardMessage,
		TotalRewardMessage: req.TotalRewardMessage,
		Items:              items,
	})
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"template_id": template.ID})
}
