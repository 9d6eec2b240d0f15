// Package expr implements the expression language embedded in descriptor
// string fields.
//
// Templates interpolate ${expression} segments. A template consisting of a
// single segment resolves to the typed value, so "${before.login.body}" yields
// the decoded object rather than its JSON text. The #(args) shorthand is
// rewritten to ${query(args)} before interpolation:
//
//	url: "${SERVICE_URL}/pet/#(dependson, '$.id')"
//
// Expressions are parsed by a restricted recursive-descent grammar:
// literals, identifiers, property and index access, calls to registered
// functions, and the usual comparison, logical and arithmetic operators.
// Nothing in an expression can mutate the variables it reads.
//
// JSONPath queries are translated to gjson paths; see Query.
package expr
