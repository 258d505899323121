// Package definition loads entity class declarations from YAML and CUE
// files and builds runnable descriptors from them. Action bodies declared in
// a definition are Starlark scripts executed by the script engine; a watcher
// rebuilds descriptors when definition files change on disk.
package definition
