// Package http performs the requests described by test cases and hooks.
//
// Client.Perform takes a method, a URL and the resolved options map of a
// case or hook and always returns an Outcome; transport failures are carried
// in Outcome.Err rather than returned. Response bodies are decoded as JSON
// when possible and kept as text otherwise.
package http
