// Package upsert implements the create-or-replace command shared by every
// content vertical.
//
// A command carries an optional id, a full payload and an optional expected
// version. Handler.Execute:
//
//  1. validates the payload; nothing is loaded on failure
//  2. loads the aggregate when an id is given
//  3. when it does not exist: returns StatusNotFound if an expected version
//     was given, otherwise authorizes and creates it
//  4. when it exists: authorizes the update, loads the reference (the
//     expected version, or the live aggregate), writes onto the live aggregate
//     only the payload fields that differ from the reference, and commits
//  5. runs the vertical's precheck, then check quota, save and record size
//     under the owner's lock
//  6. persists and returns the read-model projection
//
// Writing only fields that differ from the reference is a merge policy, not
// last-write-wins and not a strict compare-and-swap: a field a concurrent
// writer changed after the reference is kept when the payload still matches
// the reference, and overwritten otherwise.
package upsert
