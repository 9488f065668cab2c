// Package testutil provides reusable testing helpers for enforcing
// architectural boundaries across the repository.
package testutil

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages" //nolint:depguard // test-time package loading
)

// ImportsUnder returns a predicate matching import paths equal to, or nested
// below, any of the given prefixes.
func ImportsUnder(prefixes ...string) func(string) bool {
	return func(path string) bool {
		for _, p := range prefixes {
			p = strings.TrimSuffix(p, "/")
			if path == p || strings.HasPrefix(path, p+"/") {
				return true
			}
		}
		return false
	}
}

// HostInternalsForbidden matches every package under abxcore/internal.
var HostInternalsForbidden = ImportsUnder("abxcore/internal")

var loadPackages = func(pattern string, mode packages.LoadMode, tests bool) ([]*packages.Package, error) {
	pkgs, err := packages.Load(&packages.Config{Mode: mode, Tests: tests}, pattern)
	if err != nil {
		return nil, err
	}
	if packages.PrintErrors(pkgs) > 0 {
		return nil, fmt.Errorf("packages matching %s failed to load", pattern)
	}
	return pkgs, nil
}

// AssertNoDirectImports loads the packages matching pattern, tests included,
// and fails if any of them imports a path satisfying forbidden.
func AssertNoDirectImports(t testing.TB, pattern string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	pkgs, err := loadPackages(pattern, packages.NeedName|packages.NeedImports, true)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	failIfViolations(t, "forbidden direct imports", reason, directImportViolations(pkgs, forbidden))
}

// AssertNoTransitiveDependency fails if any package in the dependency graph
// of pattern satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	pkgs, err := loadPackages(pattern, packages.NeedName|packages.NeedImports|packages.NeedDeps, false)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	failIfViolations(t, "forbidden transitive dependency", reason, transitiveViolations(pkgs, forbidden))
}

func directImportViolations(pkgs []*packages.Package, forbidden func(string) bool) []string {
	seen := map[string]bool{}
	var viols []string
	for _, pkg := range pkgs {
		for path := range pkg.Imports {
			v := path + " (in " + pkg.PkgPath + ")"
			if forbidden(path) && !seen[v] {
				seen[v] = true
				viols = append(viols, v)
			}
		}
	}
	sort.Strings(viols)
	return viols
}

func transitiveViolations(roots []*packages.Package, forbidden func(string) bool) []string {
	isRoot := make(map[string]bool, len(roots))
	for _, r := range roots {
		isRoot[r.PkgPath] = true
	}
	var viols []string
	packages.Visit(roots, nil, func(p *packages.Package) {
		if !isRoot[p.PkgPath] && forbidden(p.PkgPath) {
			viols = append(viols, p.PkgPath)
		}
	})
	sort.Strings(viols)
	return viols
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("%s detected (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
