// Package es is the event-sourcing kernel shared by every content vertical.
//
// An aggregate embeds a Root and implements Apply with an explicit switch over
// its closed set of event variants. State is never written directly: New and
// Commit style methods call Raise, which stamps an Envelope at version+1 and
// folds it through Apply. Loading folds the persisted history through the same
// Apply via Replay, so a replayed aggregate is indistinguishable from the one
// that produced the events.
//
// Versions start at 1 with the creation event and increase by exactly one per
// committed event. Version 0 means the aggregate does not exist.
//
// Repository persists only the envelopes raised since the aggregate was loaded.
// An EventLog rejects an append whose first version is not the stored latest
// plus one, which is surfaced as CodeVersionConflict.
package es
