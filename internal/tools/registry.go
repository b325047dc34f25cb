package tools

import (
	"context"
	"strings"

	"github.com/phuslu/log"
)

// Kind names a tool a chat request may ask for. The set is closed.
type Kind string

const (
	KindWebSearch Kind = "web_search"
	KindGitHub    Kind = "github"
)

// ParseKind maps a requested tool name onto a known Kind.
func ParseKind(name string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case KindWebSearch, KindGitHub:
		return k, true
	}
	return "", false
}

// Tool answers a free-text query with text.
type Tool interface {
	Kind() Kind
	Invoke(ctx context.Context, query string) (string, error)
}

// Registry holds the tools known to this process. It is built once at
// startup and read-only afterwards; only the web access switch changes.
type Registry struct {
	tools     map[Kind]Tool
	webAccess func() bool
	logger    *log.Logger
}

func NewRegistry(logger *log.Logger, tools ...Tool) *Registry {
	r := &Registry{tools: make(map[Kind]Tool, len(tools)), logger: logger}
	for _, t := range tools {
		r.tools[t.Kind()] = t
	}
	return r
}

// GateWebAccess makes Run skip every tool while allowed reports false.
// Every registered tool reaches the network. Call it before first use.
func (r *Registry) GateWebAccess(allowed func() bool) *Registry {
	r.webAccess = allowed
	return r
}

// Enabled reports whether tools may run right now.
func (r *Registry) Enabled() bool {
	return r.webAccess == nil || r.webAccess()
}

// Has reports whether a tool of kind k is registered.
func (r *Registry) Has(k Kind) bool {
	_, ok := r.tools[k]
	return ok
}

// Kinds lists the registered tools.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.tools))
	for _, k := range []Kind{KindWebSearch, KindGitHub} {
		if r.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Run invokes the named tools in request order and joins their labelled
// outputs with blank lines. Unknown names are skipped and failing tools
// are left out.
func (r *Registry) Run(ctx context.Context, names []string, input string) string {
	if len(names) > 0 && !r.Enabled() {
		r.logger.Debug().Strs("tools", names).Msg("web access disabled, tools skipped")
		return ""
	}
	var outputs []string
	for _, name := range names {
		k, ok := ParseKind(name)
		if !ok || !r.Has(k) {
			r.logger.Debug().Str("tool", name).Msg("unknown or disabled tool skipped")
			continue
		}
		out, err := r.tools[k].Invoke(ctx, input)
		if err != nil {
			r.logger.Warn().Err(err).Str("tool", string(k)).Msg("tool failed")
			continue
		}
		outputs = append(outputs, "["+string(k)+"]\n"+out)
	}
	return strings.Join(outputs, "\n\n")
}
