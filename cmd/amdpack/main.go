// Command amdpack bundles the AMD modules of Magento 2 storefront themes.
//
// Usage:
//
//	amdpack build
//	amdpack build --theme Magento/luma --json | amdpack ci
//	amdpack graph --theme Magento/luma --output dot
package main

import (
	"os"

	"github.com/albertocavalcante/amdpack/internal/cmd/amdpack"
)

func main() {
	os.Exit(amdpack.Run(os.Args[1:]))
}
