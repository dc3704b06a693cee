package ls

import (
	"fmt"
	"log/slog"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// publishDiagnostics sends the current diagnostics of every path, in order.
func (s *Server) publishDiagnostics(paths []string) {
	for _, path := range paths {
		uri, ok := s.uriFor(path)
		if !ok {
			continue
		}
		doc, ok := s.session.Document(path)
		if !ok {
			continue
		}
		s.notifyDiagnostics(uri, toProtocolDiagnostics(doc.Text, doc.Diagnostics))
	}
}

func (s *Server) notifyDiagnostics(uri protocol.DocumentUri, diagnostics []protocol.Diagnostic) {
	notify := s.notifier()
	if notify == nil {
		return
	}
	notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

func (s *Server) showMessage(typ protocol.MessageType, message string) {
	notify := s.notifier()
	if notify == nil {
		slog.Debug("no client to show message", "message", message)
		return
	}
	notify(protocol.ServerWindowShowMessage, protocol.ShowMessageParams{
		Type:    typ,
		Message: message,
	})
}

func (s *Server) schemaChanged(paths []string) {
	slog.Debug("republishing diagnostics", "documents", len(paths))
	s.publishDiagnostics(paths)
}

func (s *Server) listenerStopped(err error) {
	s.showMessage(protocol.MessageTypeWarning,
		fmt.Sprintf("Stopped listening for schema changes: %v", err))
}
