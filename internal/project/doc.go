// Package project holds the identity and state model shared by the
// supervisor, the registry and the orchestrator.
//
// A tracked project is identified by the cleaned absolute path of its project
// file. Its observable state is a Snapshot value; state changes are expressed
// as Events and applied with Snapshot.Apply, which returns a new snapshot and
// leaves the receiver untouched. Front ends subscribe to streams of snapshots
// instead of mutating shared fields.
package project
