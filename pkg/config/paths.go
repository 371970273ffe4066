package config

// URI scheme and format constants
const (
	URIScheme      = "toolserver://"
	URIFormatError = "Invalid URI format, expected 'toolserver://{path}'"
)

// MIME types used by built-in resources
const (
	MimeTypeJSON     = "application/json"
	MimeTypeText     = "text/plain"
	MimeTypeMarkdown = "text/markdown"
)

// Transport names accepted by --transport
const (
	TransportEnvelope = "envelope"
	TransportMCP      = "mcp"
	TransportTCP      = "tcp"
)

// Handler set names accepted by --handlers
const (
	HandlerSystem = "system"
	HandlerDocker = "docker"
	HandlerGitHub = "github"
)

// ResourceURI builds the URI of a built-in resource
func ResourceURI(path string) string {
	return URIScheme + path
}
