package requireconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// GenerateBundleConfig prepends a require.config call to raw declaring
// that bundleDir/bundleID provides deps, so the loader does not fetch those
// modules on its own.
func GenerateBundleConfig(raw []byte, bundleDir, bundleID string, deps []string) []byte {
	if deps == nil {
		deps = []string{}
	}
	var list bytes.Buffer
	enc := json.NewEncoder(&list)
	enc.SetEscapeHTML(false)
	enc.SetIndent("        ", "  ")
	// Encoding a []string cannot fail.
	_ = enc.Encode(deps)

	key, _ := json.Marshal(path.Join(bundleDir, bundleID))

	var b bytes.Buffer
	fmt.Fprintf(&b, `(function() {
    // Declares the modules already provided by the bundle so the loader
    // does not request them individually.
    require.config({
        bundles: {
            %s: %s
        }
    });
})();
`, key, strings.TrimRight(list.String(), "\n"))
	b.Write(raw)
	return b.Bytes()
}
