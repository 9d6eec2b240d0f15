// Package env supplies the global variables visible to descriptor
// expressions.
//
// Globals are seeded from the project config, a dotenv file, prefixed OS
// environment variables and command-line assignments. Each suite works on
// its own copy; config blocks then assign with first-writer-wins semantics.
package env
