package server

import (
	"net/http"

	"guess-the-drop/internal/config"
	"guess-the-drop/internal/db"
	"guess-the-drop/internal/game"
	"guess-the-drop/internal/pubsub"
)

type Server struct {
	store  db.GameStore
	engine *game.Engine
	rooms  *pubsub.Registry
	cfg    config.Config
}

func New(store db.GameStore, rooms *pubsub.Registry, cfg config.Config) *Server {
	return &Server{
		store:  store,
		engine: game.NewEngine(store, rooms),
		rooms:  rooms,
		cfg:    cfg,
	}
}

// Engine exposes the game engine, mainly so tests can drive actions
// directly.
func (s *Server) Engine() *game.Engine {
	return s.engine
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/templates", s.handleListTemplates)
	mux.HandleFunc("POST /api/templates", s.handleCreateTemplate)

	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games", s.handleGameSummaries)
	mux.HandleFunc("GET /api/games/{code}", s.handleBoard)
	mux.HandleFunc("POST /api/games/{code}/join", s.handleJoin)
	mux.HandleFunc("POST /api/games/{code}/guess", s.handleGuess)
	mux.HandleFunc("POST /api/games/{code}/lock", s.handleLock)
	mux.HandleFunc("POST /api/games/{code}/unlock", s.handleUnlock)
	mux.HandleFunc("POST /api/games/{code}/clear-guesses", s.handleClearGuesses)
	mux.HandleFunc("POST /api/games/{code}/finish", s.handleFinish)
	mux.HandleFunc("POST /api/games/{code}/items/{item}/enable", s.handleEnableItem)
	mux.HandleFunc("POST /api/games/{code}/items/{item}/disable", s.handleDisableItem)
	mux.HandleFunc("POST /api/games/{code}/items/{item}/choose", s.handleChooseItem)

	mux.HandleFunc("GET /ws/games/{code}", s.handleWebsocket)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
