// Package resolver maps AMD module requests to module ids and file paths
// the way RequireJS does, honoring the map and paths configuration.
package resolver

import (
	"path"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/albertocavalcante/amdpack/internal/amd/moduleid"
	"github.com/albertocavalcante/amdpack/internal/amd/requireconfig"
)

// Resolved is the result of resolving one request.
//
// ModuleID and ModulePath are empty for plugin-only requests such as
// "domReady!". Paths are slash-separated and relative to the base directory.
type Resolved struct {
	ModuleID   string `json:"moduleID"`
	ModulePath string `json:"modulePath"`
	PluginID   string `json:"pluginID"`
	PluginPath string `json:"pluginPath"`
}

// IsZero reports whether the request resolved to nothing.
func (r Resolved) IsZero() bool {
	return r == Resolved{}
}

// ModuleResolver resolves module requests issued by a module.
type ModuleResolver interface {
	// Resolve resolves request. issuer is the id of the requesting module,
	// or "" when there is none.
	Resolve(request, issuer string) Resolved
}

// Func adapts a function to ModuleResolver.
type Func func(request, issuer string) Resolved

// Resolve implements ModuleResolver.
func (f Func) Resolve(request, issuer string) Resolved {
	return f(request, issuer)
}

const pathCacheSize = 4096

// Resolver resolves requests against a fixed configuration.
// It is safe for concurrent use.
type Resolver struct {
	cfg    *requireconfig.Config
	parser moduleid.Parser
	logger zerolog.Logger

	// paths memoizes paths-prefix substitution per id.
	paths *lru.Cache[string, string]
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for trace output.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
		r.parser = moduleid.Parser{Logger: l}
	}
}

// New creates a Resolver for cfg. A nil cfg behaves like an empty config.
func New(cfg *requireconfig.Config, opts ...Option) *Resolver {
	if cfg == nil {
		cfg = requireconfig.New()
	}
	cache, err := lru.New[string, string](pathCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	r := &Resolver{
		cfg:    cfg,
		parser: moduleid.Parser{Logger: zerolog.Nop()},
		logger: zerolog.Nop(),
		paths:  cache,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements ModuleResolver.
func (r *Resolver) Resolve(request, issuer string) Resolved {
	r.logger.Trace().Str("request", request).Str("issuer", issuer).Msg("resolving")

	req := r.parser.Parse(request)
	if req.IsZero() {
		return Resolved{}
	}

	var out Resolved
	if req.Plugin != "" {
		plugin := r.Resolve(req.Plugin, issuer)
		out.PluginID = plugin.ModuleID
		out.PluginPath = plugin.ModulePath
	}

	if req.ID == "" {
		return out
	}

	id := r.normalize(req.ID, issuer, req.Kind() == moduleid.PluginText)
	out.ModulePath = r.toPath(id, req.Kind())
	if req.Plugin != "" {
		out.ModuleID = out.PluginID + "!" + id
	} else {
		out.ModuleID = id
	}
	return out
}

// Path returns the file path of an already resolved module id such as a
// graph key. Unlike Resolve it applies neither relative normalization nor
// map, so resolving a mapped id twice cannot chain substitutions.
func (r *Resolver) Path(moduleID string) string {
	req := r.parser.Parse(moduleID)
	if req.ID == "" {
		return ""
	}
	return r.toPath(req.ID, req.Kind())
}

// normalize resolves relative ids against the issuer and applies map. For
// resources, which carry their extension, a map entry for the whole id wins;
// otherwise map is applied to the id without extension, as toUrl does.
func (r *Resolver) normalize(id, issuer string, resource bool) string {
	var base []string
	if issuer != "" {
		base = strings.Split(issuer, "/")
	}

	if strings.HasPrefix(id, ".") && base != nil {
		parts := append(append([]string{}, base[:len(base)-1]...), strings.Split(id, "/")...)
		id = strings.Join(trimDots(parts), "/")
	} else if strings.HasPrefix(id, ".") {
		id = strings.Join(trimDots(strings.Split(id, "/")), "/")
	}

	mapped := r.applyMap(id, base)
	if !resource || mapped != id {
		return mapped
	}
	name, ext := splitExt(id)
	return r.applyMap(name, base) + ext
}

// splitExt splits id at the last dot. A dot that only belongs to a leading
// "./" or "../" is not an extension.
func splitExt(id string) (name, ext string) {
	i := strings.LastIndex(id, ".")
	if i == -1 {
		return id, ""
	}
	first, _, _ := strings.Cut(id, "/")
	if relative := first == "." || first == ".."; relative && i <= 1 {
		return id, ""
	}
	return id[:i], id[i:]
}

// applyMap replaces the longest mapped prefix of id. Context maps for the
// longest matching issuer prefix win over the global "*" map.
func (r *Resolver) applyMap(id string, base []string) string {
	if len(r.cfg.Map) == 0 {
		return id
	}
	star := r.cfg.Map["*"]
	if base == nil && star == nil {
		return id
	}

	parts := strings.Split(id, "/")
	var (
		found     string
		foundN    int
		starFound string
		starN     int
	)

outer:
	for i := len(parts); i > 0; i-- {
		segment := strings.Join(parts[:i], "/")
		for j := len(base); j > 0; j-- {
			ctx, ok := r.cfg.Map[strings.Join(base[:j], "/")]
			if !ok {
				continue
			}
			if v, ok := ctx[segment]; ok {
				found, foundN = v, i
				break outer
			}
		}
		if starFound == "" && star != nil {
			if v, ok := star[segment]; ok {
				starFound, starN = v, i
			}
		}
	}

	if found == "" && starFound != "" {
		found, foundN = starFound, starN
	}
	if found == "" {
		return id
	}
	return strings.Join(append([]string{found}, parts[foundN:]...), "/")
}

// toPath computes the file path for a normalized id.
//
// As with RequireJS toUrl, the extension is split at the last dot before
// paths are applied and added back afterwards.
func (r *Resolver) toPath(id string, kind moduleid.PluginKind) string {
	name, ext := splitExt(id)
	p := r.applyPaths(name) + ext
	if kind == moduleid.PluginText {
		return p
	}
	switch path.Ext(p) {
	case ".js", ".html":
		return p
	default:
		return p + ".js"
	}
}

// applyPaths substitutes the longest configured prefix of name.
func (r *Resolver) applyPaths(name string) string {
	if len(r.cfg.Paths) == 0 {
		return name
	}
	if v, ok := r.paths.Get(name); ok {
		return v
	}

	out := name
	parts := strings.Split(name, "/")
	for i := len(parts); i > 0; i-- {
		if p, ok := r.cfg.Paths[strings.Join(parts[:i], "/")]; ok {
			out = strings.Join(append([]string{p}, parts[i:]...), "/")
			break
		}
	}

	r.paths.Add(name, out)
	return out
}

// trimDots removes "." segments and folds ".." into its parent. Leading
// ".." segments that have nothing to climb are kept.
func trimDots(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
				continue
			}
			out = append(out, p)
		default:
			out = append(out, p)
		}
	}
	return out
}
