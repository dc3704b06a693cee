package ls

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	"github.com/skaji/postgres-language-server/internal/session"
)

var (
	ServerName = "postgres-language-server"
	Version    = "0.0.1"
)

type Server struct {
	handler protocol.Handler
	session *session.Session
	state   *State

	ctx    context.Context
	cancel context.CancelFunc
	// dbMu orders database switches started in the background.
	dbMu sync.Mutex
	wg   sync.WaitGroup
}

// New returns a Server answering requests from sess. A nil sess gets a
// fresh Session.
func New(sess *session.Session) *Server {
	if sess == nil {
		sess = session.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		session: sess,
		state:   newState(),
		ctx:     ctx,
		cancel:  cancel,
	}
	s.handler = protocol.Handler{
		Initialize:                      s.initialize,
		Initialized:                     s.initialized,
		Shutdown:                        s.shutdown,
		SetTrace:                        s.setTrace,
		TextDocumentDidOpen:             s.didOpen,
		TextDocumentDidChange:           s.didChange,
		TextDocumentDidSave:             s.didSave,
		TextDocumentDidClose:            s.didClose,
		TextDocumentHover:               s.hover,
		TextDocumentCompletion:          s.completion,
		TextDocumentCodeAction:          s.codeAction,
		WorkspaceExecuteCommand:         s.executeCommand,
		WorkspaceDidChangeConfiguration: s.didChangeConfiguration,
	}
	sess.OnSchemaChange(s.schemaChanged)
	sess.OnListenerStopped(s.listenerStopped)
	return s
}

func (s *Server) RunStdio() error {
	slog.Debug("starting LSP server", "name", ServerName, "version", Version)
	srv := server.NewServer(&s.handler, ServerName, false)
	return srv.RunStdio()
}

func (s *Server) initialize(context *glsp.Context, params *protocol.InitializeParams) (any, error) {
	slog.Debug("initialize request received")
	s.remember(context)

	capabilities := s.handler.CreateServerCapabilities()
	syncKind := protocol.TextDocumentSyncKindIncremental
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: &protocol.True,
		Change:    &syncKind,
		Save:      &protocol.SaveOptions{IncludeText: &protocol.False},
	}
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: []string{session.ExecuteStatementCommand},
	}

	pull := false
	if ws := params.Capabilities.Workspace; ws != nil && ws.Configuration != nil {
		pull = *ws.Configuration
	}
	opts, err := decodeOptions(params.InitializationOptions)
	if err != nil {
		slog.Warn("invalid initialization options", "error", err)
	}

	s.state.mu.Lock()
	s.state.pullConfiguration = pull
	s.state.editorDB = opts.DBConnectionString
	s.state.mu.Unlock()
	slog.Debug("initialize configuration", "pullConfiguration", pull, "database", opts.DBConnectionString != "")

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    ServerName,
			Version: &Version,
		},
	}, nil
}

// initialized connects to the database named by the initialization options,
// or else to the one configured on the command line.
func (s *Server) initialized(context *glsp.Context, _ *protocol.InitializedParams) error {
	slog.Debug("initialized notification received")
	s.remember(context)

	s.state.mu.Lock()
	s.state.initialized = true
	connString := s.state.editorDB
	if connString == "" {
		connString = s.state.fileDB
	}
	s.state.mu.Unlock()

	if connString != "" {
		s.changeDatabase(connString)
	}
	return nil
}

func (s *Server) shutdown(_ *glsp.Context) error {
	slog.Debug("shutdown request received")
	s.cancel()
	s.wg.Wait()
	s.session.Shutdown()
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

func (s *Server) setTrace(_ *glsp.Context, params *protocol.SetTraceParams) error {
	slog.Debug("setTrace request received", "value", params.Value)
	protocol.SetTraceValue(params.Value)
	return nil
}

func (s *Server) didOpen(context *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	slog.Debug("didOpen", "uri", params.TextDocument.URI, "version", params.TextDocument.Version)
	s.remember(context)

	path := s.track(params.TextDocument.URI)
	paths := s.session.Open(path, params.TextDocument.Version, params.TextDocument.Text)
	s.publishDiagnostics(paths)
	return nil
}

func (s *Server) didChange(context *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	if len(params.ContentChanges) == 0 {
		return nil
	}
	s.remember(context)

	path := s.track(params.TextDocument.URI)
	var current string
	if doc, ok := s.session.Document(path); ok {
		current = doc.Text
	}
	text, ok := applyContentChanges(current, params.ContentChanges)
	if !ok {
		slog.Warn("unsupported content change", "uri", params.TextDocument.URI)
		return nil
	}
	logChangeSummary(path, params.TextDocument.Version, params.ContentChanges, len(text))

	paths := s.session.ApplyChange(path, params.TextDocument.Version, text)
	s.publishDiagnostics(paths)
	return nil
}

func (s *Server) didSave(context *glsp.Context, params *protocol.DidSaveTextDocumentParams) error {
	slog.Debug("didSave", "uri", params.TextDocument.URI)
	s.remember(context)

	path := s.track(params.TextDocument.URI)
	s.publishDiagnostics(s.session.Save(path))
	return nil
}

func (s *Server) didClose(context *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	slog.Debug("didClose", "uri", params.TextDocument.URI)
	s.remember(context)

	path := documentPath(params.TextDocument.URI)
	s.session.Close(path)
	s.forget(path)
	s.notifyDiagnostics(params.TextDocument.URI, []protocol.Diagnostic{})
	return nil
}
