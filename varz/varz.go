/*
varz provides helpers to create expvar variables with package-qualified names,
so two packages can both count "hits" without colliding.

Nothing serves them over HTTP; Snapshot is how the admin tool reads them.
*/
package varz

import (
	"expvar"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// callerPackage returns the package name of the caller of the
// function.  Use a loose heuristic to get that split apart.
// If the variable is declared in a var block, this will remove the
// "init" bit.
func callerPackage() string {
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return "varz.unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "varz.unknown"
	}

	n := fn.Name()
	dot := strings.LastIndex(n, ".")
	if dot != -1 {
		n = n[:dot]
	}
	if slash := strings.LastIndex(n, "/"); slash != -1 {
		n = n[slash+1:]
	}

	return n
}

func NewInt(name string) *expvar.Int {
	return expvar.NewInt(fmt.Sprintf("%s.%s", callerPackage(), name))
}

func NewFloat(name string) *expvar.Float {
	return expvar.NewFloat(fmt.Sprintf("%s.%s", callerPackage(), name))
}

// Var is one published variable.
type Var struct {
	Name  string
	Value string
}

// Snapshot returns the variables whose names start with prefix, sorted by
// name.  An empty prefix returns everything, including the runtime's own
// cmdline and memstats.
func Snapshot(prefix string) []Var {
	var vars []Var
	expvar.Do(func(kv expvar.KeyValue) {
		if strings.HasPrefix(kv.Key, prefix) {
			vars = append(vars, Var{Name: kv.Key, Value: kv.Value.String()})
		}
	})
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}
