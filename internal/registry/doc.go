// Package registry maps model stream identifiers to their dapp-scoped names
// and owning dapps. File resolution dispatches on model names ("indexFile",
// "actionFile", "indexFolder", "contentFolder"); commit acceptance consults
// the registry to confirm a declared model exists before signature policy
// runs against it.
//
// Two implementations: DB (SQLite, the operational registry) and Static
// (in-memory fixture for tests and seeded setups).
package registry
