// Package session provides session management for Cherry Circuit.
//
// Manager keeps live sessions in memory, keyed case-insensitively, and writes
// them through a SessionPersistence when one is configured. Two stores are
// available:
//
//   - FilePersistence writes one JSON document per session into a directory
//   - SQLitePersistence upserts rows into a sessions table (modernc.org/sqlite)
//
// Both store the config ID and the full game state, and rebuild a fresh engine
// around the stored state on load.
//
// Sessions use 4-character hex IDs unless the caller supplies one. Access
// times are tracked in memory only; SaveAllSessions flushes them.
//
// Usage:
//
//	store, err := session.NewSQLitePersistence("data/sessions.db", configMgr)
//	if err != nil {
//		log.Fatal(err)
//	}
//	manager := session.NewManagerWithPersistence(store)
//	manager.LoadPersistedSessions()
//
//	sess, err := manager.Create("", circuit)
package session
