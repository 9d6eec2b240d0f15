// Package runner executes ddtspec descriptors.
//
// An Engine loads descriptor documents and runs each one as a suite:
//   - config assignment into the suite globals (first writer wins)
//   - beforeAll hooks, then every case, then afterAll hooks
//   - per case: dependency check, beforeEach and before hooks, the main
//     request, the validation pipeline, then afterEach and after hooks
//
// Cases within a suite run strictly in order. Suites may run concurrently
// when the configuration enables it, since they share no state.
//
// A failing setup step ends its case before the main request is issued.
// Teardown steps are always attempted once the main request has been
// reached, and the first teardown failure is the one reported for the case.
package runner
