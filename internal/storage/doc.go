// Package storage persists scheduled announcements.
//
// One sqlite table, `scheduled`, keyed by an auto-increment id. Every
// operation is a single atomic statement (or a scoped transaction), which is
// the only synchronization the rest of the system relies on: the operator
// handler and the delivery poller share nothing but this store.
package storage
