// Package startup handles application initialization: environment-based
// configuration, directory validation, external tool checks, and the
// structured startup/shutdown log output.
package startup
