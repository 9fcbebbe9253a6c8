// Package moduleid parses AMD module requests of the form "plugin!id".
package moduleid

import (
	"strings"

	"github.com/rs/zerolog"
)

// PluginKind is the closed set of loader plugins the bundler understands.
type PluginKind int

const (
	// PluginNone means the request carries no plugin prefix.
	PluginNone PluginKind = iota
	// PluginText inlines a resource as a string-returning module.
	PluginText
	// PluginDomReady has no backing resource when used as "domReady!".
	PluginDomReady
	// PluginUnrecognized is any other prefix. Requests using it are dropped.
	PluginUnrecognized
)

// Plugin names as they appear in requests.
const (
	Text     = "text"
	DomReady = "domReady"
)

// KindOf classifies a plugin name.
func KindOf(plugin string) PluginKind {
	switch plugin {
	case "":
		return PluginNone
	case Text:
		return PluginText
	case DomReady:
		return PluginDomReady
	default:
		return PluginUnrecognized
	}
}

func (k PluginKind) String() string {
	switch k {
	case PluginNone:
		return "none"
	case PluginText:
		return "text"
	case PluginDomReady:
		return "domReady"
	default:
		return "unrecognized"
	}
}

// ID is a parsed module request.
type ID struct {
	ID     string
	Plugin string
}

// Kind reports the plugin kind of the request.
func (i ID) Kind() PluginKind {
	return KindOf(i.Plugin)
}

// IsZero reports whether the request was dropped or empty.
func (i ID) IsZero() bool {
	return i.ID == "" && i.Plugin == ""
}

// String joins the request back into "plugin!id" form.
func (i ID) String() string {
	if i.Plugin == "" {
		return i.ID
	}
	return i.Plugin + "!" + i.ID
}

// Parser splits module requests. The zero value is usable and logs nothing.
type Parser struct {
	Logger zerolog.Logger
}

var nop = Parser{Logger: zerolog.Nop()}

// Parse splits a request using a parser that does not log.
func Parse(request string) ID {
	return nop.Parse(request)
}

// Parse splits request into its plugin and id parts.
//
// A request with an unrecognized plugin yields the zero ID. Segments after
// the id ("text!a!b") are ignored.
func (p Parser) Parse(request string) ID {
	parts := strings.Split(request, "!")
	if len(parts) == 1 {
		return ID{ID: request}
	}

	plugin, id := parts[0], parts[1]
	if len(parts) > 2 {
		p.Logger.Trace().
			Str("request", request).
			Strs("ignored", parts[2:]).
			Msg("ignoring extra plugin segments")
	}

	switch KindOf(plugin) {
	case PluginText, PluginDomReady:
		return ID{ID: id, Plugin: plugin}
	default:
		p.Logger.Trace().
			Str("request", request).
			Str("plugin", plugin).
			Msg("skipping request for unrecognized plugin")
		return ID{}
	}
}
