package script

import "github.com/risor-io/risor/modules/all"

// safeBuiltins are the pure builtins and modules user code may reference.
// Nothing here touches the filesystem, the network, the process or the clock.
var safeBuiltins = map[string]bool{
	"all":         true,
	"any":         true,
	"base64":      true,
	"bool":        true,
	"byte_slice":  true,
	"byte":        true,
	"bytes":       true,
	"call":        true,
	"chr":         true,
	"chunk":       true,
	"coalesce":    true,
	"decode":      true,
	"encode":      true,
	"error":       true,
	"errorf":      true,
	"errors":      true,
	"float_slice": true,
	"float":       true,
	"fmt":         true,
	"getattr":     true,
	"int":         true,
	"is_hashable": true,
	"iter":        true,
	"json":        true,
	"keys":        true,
	"len":         true,
	"list":        true,
	"map":         true,
	"math":        true,
	"ord":         true,
	"regexp":      true,
	"reversed":    true,
	"set":         true,
	"sorted":      true,
	"sprintf":     true,
	"string":      true,
	"strings":     true,
	"try":         true,
	"type":        true,
}

// pureGlobals returns the allow-listed builtins.
func pureGlobals() map[string]any {
	globals := make(map[string]any, len(safeBuiltins))
	for name, value := range all.Builtins() {
		if safeBuiltins[name] {
			globals[name] = value
		}
	}
	return globals
}
