package ls

import (
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

type State struct {
	mu sync.Mutex
	// uris maps a normalized document path back to the URI the client uses.
	uris   map[string]protocol.DocumentUri
	notify glsp.NotifyFunc

	initialized       bool
	pullConfiguration bool
	// editorDB is the connection string sent by the editor, fileDB the one
	// from the command line or config file. The editor's wins.
	editorDB string
	fileDB   string
	dbGen    uint64
}

func newState() *State {
	return &State{
		uris: make(map[string]protocol.DocumentUri),
	}
}

// remember keeps the client's notification channel for messages sent
// outside of a request, such as diagnostics after a schema reload.
func (s *Server) remember(context *glsp.Context) {
	if context == nil || context.Notify == nil {
		return
	}
	s.state.mu.Lock()
	s.state.notify = context.Notify
	s.state.mu.Unlock()
}

func (s *Server) notifier() glsp.NotifyFunc {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.notify
}

func (s *Server) track(uri protocol.DocumentUri) string {
	path := documentPath(uri)
	s.state.mu.Lock()
	s.state.uris[path] = uri
	s.state.mu.Unlock()
	return path
}

func (s *Server) forget(path string) {
	s.state.mu.Lock()
	delete(s.state.uris, path)
	s.state.mu.Unlock()
}

func (s *Server) uriFor(path string) (protocol.DocumentUri, bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	uri, ok := s.state.uris[path]
	return uri, ok
}
