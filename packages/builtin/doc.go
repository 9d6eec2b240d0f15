// Package builtin provides the side-effect-free helper functions callable from
// descriptor expressions.
//
// Available functions:
//   - uuid(): random UUID v4
//   - now(): current UTC time in RFC 3339
//   - timestamp(), timestampMs(): Unix time in seconds or milliseconds
//   - date(layout): current UTC date formatted with a Go layout
//   - random(min, max): random integer in the closed range
//   - randomString(n), randomAlphanumeric(n), randomEmail()
//   - base64(s), base64Decode(s), md5(s), sha256(s)
//   - urlEncode(s), urlDecode(s)
//   - upper(s), lower(s), trim(s)
//
// Functions are invoked inside ${...} segments, e.g. "${SERVICE_URL}/users/${uuid()}".
package builtin
