package ls

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// SetDefaultDatabase sets the connection string used when the editor does
// not send one. It takes effect immediately once the client is initialized.
func (s *Server) SetDefaultDatabase(connString string) {
	s.state.mu.Lock()
	s.state.fileDB = connString
	apply := s.state.initialized && s.state.editorDB == "" && connString != ""
	s.state.mu.Unlock()

	if apply {
		s.changeDatabase(connString)
	}
}

// didChangeConfiguration pulls the "pglsp" section when the client supports
// workspace/configuration and falls back to the pushed settings. The pull is
// a request to the client, so it must not block the handler.
func (s *Server) didChangeConfiguration(context *glsp.Context, params *protocol.DidChangeConfigurationParams) error {
	s.remember(context)

	s.state.mu.Lock()
	pull := s.state.pullConfiguration
	s.state.mu.Unlock()

	if !pull || context == nil || context.Call == nil {
		s.applySettings(params.Settings)
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.applyPulledSettings(context) {
			return
		}
		s.applySettings(params.Settings)
	}()
	return nil
}

func (s *Server) applyPulledSettings(context *glsp.Context) bool {
	section := settingsSection
	var result []json.RawMessage
	context.Call(protocol.ServerWorkspaceConfiguration, protocol.ConfigurationParams{
		Items: []protocol.ConfigurationItem{{Section: &section}},
	}, &result)
	if len(result) == 0 {
		slog.Debug("client returned no configuration")
		return false
	}

	opts, err := decodeOptions(result[0])
	if err != nil {
		s.invalidSettings(err)
		return false
	}
	if opts.DBConnectionString == "" {
		return false
	}
	s.useEditorDatabase(opts.DBConnectionString)
	return true
}

func (s *Server) applySettings(settings any) {
	opts, err := decodeOptions(settings)
	if err != nil {
		s.invalidSettings(err)
		return
	}
	if opts.DBConnectionString != "" {
		s.useEditorDatabase(opts.DBConnectionString)
	}
}

func (s *Server) invalidSettings(err error) {
	slog.Warn("invalid client settings", "error", err)
	s.showMessage(protocol.MessageTypeWarning,
		fmt.Sprintf("The pglsp configuration is invalid; keeping the current settings.\nDetails: %v", err))
}

func (s *Server) useEditorDatabase(connString string) {
	s.state.mu.Lock()
	s.state.editorDB = connString
	s.state.mu.Unlock()
	s.changeDatabase(connString)
}

// changeDatabase switches the session to connString in the background. When
// several switches queue up only the latest one runs.
func (s *Server) changeDatabase(connString string) {
	s.state.mu.Lock()
	s.state.dbGen++
	gen := s.state.dbGen
	s.state.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dbMu.Lock()
		defer s.dbMu.Unlock()

		s.state.mu.Lock()
		latest := s.state.dbGen == gen
		s.state.mu.Unlock()
		if !latest || s.ctx.Err() != nil {
			return
		}
		if err := s.session.ChangeDB(s.ctx, connString); err != nil {
			s.showMessage(protocol.MessageTypeError, fmt.Sprintf("Failed to connect to the database: %v", err))
		}
	}()
}
