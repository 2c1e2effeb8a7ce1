// Package testutil holds helpers that enforce package layering from tests.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// Module is the import path prefix of this repository.
const Module = "detailcrm"

// ImportRule forbids the non-test files of Dir (relative to a module root)
// from importing any path Forbidden matches.
type ImportRule struct {
	Dir       string
	Forbidden func(importPath string) bool
	Reason    string
}

type fatalLogger interface {
	Helper()
	Fatalf(format string, args ...any)
}

// AssertNoDirectImports fails t when a non-test file in dir imports a path
// forbidden matches. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	assertNoDirectImports(t, dir, forbidden, reason)
}

// AssertImportRules checks every rule against the module rooted at root.
func AssertImportRules(t testing.TB, root string, rules ...ImportRule) {
	t.Helper()
	for _, r := range rules {
		assertNoDirectImports(t, filepath.Join(root, filepath.FromSlash(r.Dir)), r.Forbidden, r.Dir+": "+r.Reason)
	}
}

func assertNoDirectImports(t fatalLogger, dir string, forbidden func(string) bool, reason string) {
	t.Helper()
	imports, err := DirectImports(dir)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	var viols []string
	for path, files := range imports {
		if forbidden(path) {
			viols = append(viols, path+" (in "+strings.Join(files, ", ")+")")
		}
	}
	if len(viols) > 0 {
		sort.Strings(viols)
		t.Fatalf("forbidden imports (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

// DirectImports maps each import path used by the non-test files of dir to
// the files importing it.
func DirectImports(dir string) (map[string][]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	out := map[string][]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			p := strings.Trim(imp.Path.Value, `"`)
			out[p] = append(out[p], name)
		}
	}
	return out, nil
}

// InternalImportForbidden matches any path containing /internal/.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

// ImportsAny matches the given module packages (relative paths such as
// "internal/core") and their subpackages.
func ImportsAny(pkgs ...string) func(string) bool {
	return func(path string) bool {
		for _, p := range pkgs {
			full := Module + "/" + p
			if path == full || strings.HasPrefix(path, full+"/") {
				return true
			}
		}
		return false
	}
}
