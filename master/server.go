package master

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/lanscatter/masterd/session"
	"github.com/lanscatter/masterd/swarm"
)

// upgrader configures the websocket upgrade for the /join control
// channel, matching api.Upgrader in api/websocket.go.
var upgrader = websocket.Upgrader{
	ReadBufferSize:    4096,
	WriteBufferSize:   4096,
	EnableCompression: true,
}

// Server wires the master loop and coordinator onto an http.Handler: the
// status page, the /join control channel, and (if set) a blob handler
// delegated to package fileserver. It follows api.API's pattern of a
// router built once in New and exposed as a plain http.Handler.
type Server struct {
	loop        *Loop
	coordinator *swarm.Coordinator
	sessionCfg  session.Config

	blobHandler httprouter.Handle

	status *statusPage

	Handler http.Handler
}

// NewServer builds the router. blobHandler may be nil, in which case
// /blob/{hash} 404s - useful for tests that only exercise the control
// channel. A httprouter.Handle (rather than a plain http.Handler) is used
// so package fileserver receives the :hash path parameter the way the
// teacher's storage handlers receive :merkleroot.
func NewServer(loop *Loop, coordinator *swarm.Coordinator, sessionCfg session.Config, blobHandler httprouter.Handle) *Server {
	srv := &Server{
		loop:        loop,
		coordinator: coordinator,
		sessionCfg:  sessionCfg,
		blobHandler: blobHandler,
		status:      newStatusPage(coordinator),
	}

	router := httprouter.New()
	router.GET("/", srv.statusHandler)
	router.GET("/join", srv.joinHandler)
	if blobHandler != nil {
		router.GET("/blob/:hash", blobHandler)
	}
	srv.Handler = router
	return srv
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.status.ServeHTTP(w, r)
}

// joinHandler upgrades the request to a websocket and hands it to a fresh
// session.Session, which then owns the connection for its lifetime.
func (s *Server) joinHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sess := session.New(conn, s.sessionCfg, s.coordinator, s.loop.BatchSource, s.loop.TriggerReplan, s.loop.logger)
	go sess.Run()
}
