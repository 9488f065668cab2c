package testutil

import (
	"fmt"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func TestImportsUnder(t *testing.T) {
	forbidden := ImportsUnder("abxcore/internal/infra/", "abxcore/cmd")
	cases := []struct {
		in   string
		want bool
	}{
		{"abxcore/internal/infra/persistence/memory", true},
		{"abxcore/internal/infra", true},
		{"abxcore/cmd/abxctl", true},
		{"abxcore/internal/core", false},
		{"abxcore/cmdline", false},
	}
	for _, c := range cases {
		if got := forbidden(c.in); got != c.want {
			t.Fatalf("ImportsUnder(%q)=%v want %v", c.in, got, c.want)
		}
	}
	if !HostInternalsForbidden("abxcore/internal/catalog") || HostInternalsForbidden("abxcore/pkg/domain") {
		t.Fatalf("HostInternalsForbidden predicate mismatch")
	}
}

func graph() []*packages.Package {
	memory := &packages.Package{PkgPath: "abxcore/internal/infra/persistence/memory"}
	core := &packages.Package{PkgPath: "abxcore/internal/core", Imports: map[string]*packages.Package{memory.PkgPath: memory}}
	domain := &packages.Package{PkgPath: "abxcore/pkg/domain"}
	plugin := &packages.Package{PkgPath: "abxcore/plugins/abx", Imports: map[string]*packages.Package{
		core.PkgPath:   core,
		domain.PkgPath: domain,
	}}
	return []*packages.Package{plugin}
}

func TestDirectImportViolations(t *testing.T) {
	if got := directImportViolations(graph(), ImportsUnder("abxcore/internal/infra")); len(got) != 0 {
		t.Fatalf("memory is only reached transitively, got %v", got)
	}
	got := directImportViolations(graph(), ImportsUnder("abxcore/internal/core"))
	if len(got) != 1 || got[0] != "abxcore/internal/core (in abxcore/plugins/abx)" {
		t.Fatalf("unexpected violations %v", got)
	}
}

func TestTransitiveViolations(t *testing.T) {
	got := transitiveViolations(graph(), ImportsUnder("abxcore/internal"))
	want := []string{"abxcore/internal/core", "abxcore/internal/infra/persistence/memory"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", got, want)
	}
	if got := transitiveViolations(graph(), ImportsUnder("abxcore/plugins")); len(got) != 0 {
		t.Fatalf("roots must not count as their own dependency, got %v", got)
	}
}

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestFailIfViolations(t *testing.T) {
	var r recordingFatal
	failIfViolations(&r, "forbidden direct imports", "reason", nil)
	if r.msg != "" {
		t.Fatalf("no violations must not fail, got %q", r.msg)
	}
	failIfViolations(&r, "forbidden direct imports", "plugins stay decoupled", []string{"a", "b"})
	if !strings.Contains(r.msg, "plugins stay decoupled") || !strings.HasSuffix(r.msg, "a\nb") {
		t.Fatalf("unexpected failure message %q", r.msg)
	}
}

func TestLoadErrorsSurface(t *testing.T) {
	orig := loadPackages
	t.Cleanup(func() { loadPackages = orig })
	loadPackages = func(string, packages.LoadMode, bool) ([]*packages.Package, error) {
		return graph(), nil
	}
	AssertNoDirectImports(t, "./...", ImportsUnder("abxcore/cmd"), "stubbed graph")
	AssertNoTransitiveDependency(t, "./...", ImportsUnder("abxcore/cmd"), "stubbed graph")
}
