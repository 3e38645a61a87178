package web

import (
	"log"
	"net/http"
	"os"
	"path"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/mogaika/recursive_apply_transform/editsession"
	"github.com/mogaika/recursive_apply_transform/scene"
	"github.com/mogaika/recursive_apply_transform/status"
)

// Server holds the scene edited through the panel. Every handler takes the
// lock, so Apply never runs concurrently with reads or another Apply.
type Server struct {
	lock sync.Mutex
	root *scene.Node
	host *editsession.Host
	hub  *status.Hub

	// Atomic makes a failed Apply restore the scene
	Atomic bool
}

func NewServer(root *scene.Node, host *editsession.Host, hub *status.Hub) *Server {
	if hub == nil {
		hub = status.Default
	}
	return &Server{root: root, host: host, hub: hub}
}

func (s *Server) Router(webPath string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/json/scene", s.HandlerJsonScene).Methods("GET")
	r.HandleFunc("/json/node/{name}", s.HandlerJsonNode).Methods("GET")
	r.HandleFunc("/json/poll", s.HandlerJsonPoll).Methods("GET")
	r.HandleFunc("/action/select/{name}", s.HandlerActionSelect(true)).Methods("POST")
	r.HandleFunc("/action/deselect/{name}", s.HandlerActionSelect(false)).Methods("POST")
	r.HandleFunc("/action/apply", s.HandlerActionApply).Methods("POST")
	r.HandleFunc("/export/{format}", s.HandlerExport).Methods("GET")
	r.HandleFunc("/upload/scene", s.HandlerUploadScene).Methods("POST")
	r.HandleFunc("/ws/status", s.hub.ServeWs)

	if webPath != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(path.Join(webPath, "data"))))
	}
	return r
}

func StartServer(addr string, s *Server, webPath string) error {
	var h http.Handler = s.Router(webPath)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	h = handlers.LoggingHandler(os.Stdout, h)

	log.Printf("[web] Starting server %v", addr)

	return http.ListenAndServe(addr, h)
}
