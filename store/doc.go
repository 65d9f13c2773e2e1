// Package store keeps a ledger of team runs built from their events: the
// seed request, every accepted routing decision, every appended message and
// the terminal state. A recorded run can be replayed as its transcript and
// sequence of (decision, message) pairs.
//
// Two backends are provided. MemoryStore keeps runs in a process local map;
// SQLiteStore persists them with modernc.org/sqlite. Both implement
// core.EventSink and are attached to a coordinator or runner as a sink.
package store
