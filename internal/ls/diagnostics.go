package ls

import (
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/skaji/postgres-language-server/internal/session"
)

func toProtocolDiagnostics(text string, diags []session.Diagnostic) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(diags))
	for _, d := range diags {
		severity := toProtocolSeverity(d.Severity)
		source := d.Source
		out = append(out, protocol.Diagnostic{
			Range:    toProtocolRange(text, d.Range),
			Severity: &severity,
			Message:  d.Message,
			Source:   &source,
		})
	}
	return out
}

func toProtocolSeverity(severity session.Severity) protocol.DiagnosticSeverity {
	switch severity {
	case session.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	default:
		return protocol.DiagnosticSeverityError
	}
}
