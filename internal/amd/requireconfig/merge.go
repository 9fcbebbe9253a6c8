package requireconfig

// apply merges one require.config argument into c, following the loader's
// rules: paths, bundles and map merge key by key, config merges deeply
// with mixins unioned per base module, shim replaces per module and deps
// accumulate.
func (c *Config) apply(o *object) {
	for _, key := range o.keys {
		v := o.values[key]
		switch key {
		case "baseUrl":
			if s, ok := v.(string); ok {
				c.BaseURL = s
			}
		case "paths":
			c.applyPaths(v)
		case "map":
			c.applyMap(v)
		case "shim":
			c.applyShim(v)
		case "deps":
			c.Deps = append(c.Deps, stringList(v)...)
		case "bundles":
			if obj, ok := v.(*object); ok {
				for _, id := range obj.keys {
					c.Bundles[id] = stringList(obj.values[id])
				}
			}
		case "config":
			c.applyModuleConfig(v)
		}
	}
}

func (c *Config) applyPaths(v any) {
	obj, ok := v.(*object)
	if !ok {
		return
	}
	for _, id := range obj.keys {
		switch p := obj.values[id].(type) {
		case string:
			c.Paths[id] = p
		case []any:
			if len(p) > 0 {
				if s, ok := p[0].(string); ok {
					c.Paths[id] = s
				}
			}
		}
	}
}

func (c *Config) applyMap(v any) {
	obj, ok := v.(*object)
	if !ok {
		return
	}
	for _, context := range obj.keys {
		entries, ok := obj.values[context].(*object)
		if !ok {
			continue
		}
		m := c.Map[context]
		if m == nil {
			m = make(map[string]string, len(entries.keys))
			c.Map[context] = m
		}
		for _, from := range entries.keys {
			if to, ok := entries.values[from].(string); ok {
				m[from] = to
			}
		}
	}
}

func (c *Config) applyShim(v any) {
	obj, ok := v.(*object)
	if !ok {
		return
	}
	for _, id := range obj.keys {
		switch s := obj.values[id].(type) {
		case []any:
			c.Shim[id] = Shim{Deps: stringList(s)}
		case *object:
			var shim Shim
			if deps, ok := s.get("deps"); ok {
				shim.Deps = stringList(deps)
			}
			if exports, ok := s.get("exports"); ok {
				if e, ok := exports.(string); ok {
					shim.Exports = e
				}
			}
			c.Shim[id] = shim
		}
	}
}

func (c *Config) applyModuleConfig(v any) {
	obj, ok := v.(*object)
	if !ok {
		return
	}
	for _, key := range obj.keys {
		value := obj.values[key]
		if key == "mixins" {
			c.applyMixins(value)
			continue
		}
		c.ModuleConfig[key] = deepMerge(c.ModuleConfig[key], toJSON(value))
	}
}

func (c *Config) applyMixins(v any) {
	obj, ok := v.(*object)
	if !ok {
		return
	}
	for _, base := range obj.keys {
		entries, ok := obj.values[base].(*object)
		if !ok {
			continue
		}
		set := c.Mixins[base]
		if set == nil {
			set = &MixinSet{}
			c.Mixins[base] = set
		}
		for _, mixin := range entries.keys {
			set.Set(mixin, truthy(entries.values[mixin]))
		}
	}
}

// deepMerge merges src into dst when both are objects; otherwise src wins.
func deepMerge(dst, src any) any {
	d, dok := dst.(map[string]any)
	s, sok := src.(map[string]any)
	if !dok || !sok {
		return src
	}
	for k, v := range s {
		d[k] = deepMerge(d[k], v)
	}
	return d
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
