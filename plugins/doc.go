// Package plugins hosts plugin implementation subpackages. It contains no
// runtime code itself; the architecture guard next to this file checks that
// plugins such as plugins/abx depend on abxcore/internal/core and
// abxcore/pkg/domain only, never on storage backends, configuration or the
// command line front end.
package plugins
