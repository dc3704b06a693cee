package ls

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const settingsSection = "pglsp"

type clientOptions struct {
	DBConnectionString string `json:"dbConnectionString"`
}

// decodeOptions reads client settings, either bare or nested under the
// "pglsp" section.
func decodeOptions(options any) (clientOptions, error) {
	var decoded clientOptions
	if options == nil {
		return decoded, nil
	}

	data, err := json.Marshal(options)
	if err != nil {
		return decoded, fmt.Errorf("encode settings: %w", err)
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err == nil {
		if section, ok := sections[settingsSection]; ok {
			data = section
		}
	}
	if string(data) == "null" {
		return decoded, nil
	}

	if err := json.Unmarshal(data, &decoded); err != nil {
		return clientOptions{}, fmt.Errorf("decode settings: %w", err)
	}
	return decoded, nil
}

func uriToPath(uri protocol.DocumentUri) string {
	parsed, err := url.Parse(string(uri))
	if err != nil {
		return ""
	}
	if parsed.Scheme != "file" {
		return ""
	}
	path, err := url.PathUnescape(parsed.Path)
	if err != nil {
		return ""
	}
	return filepath.FromSlash(path)
}

func pathToURI(path string) protocol.DocumentUri {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return protocol.DocumentUri(path)
	}
	absPath = filepath.ToSlash(absPath)
	u := url.URL{
		Scheme: "file",
		Path:   absPath,
	}
	return protocol.DocumentUri(u.String())
}

// documentPath is the key a document is stored under in the session.
// Documents without a file URI keep their URI as the key.
func documentPath(uri protocol.DocumentUri) string {
	if path := uriToPath(uri); path != "" {
		return filepath.Clean(path)
	}
	return string(uri)
}
