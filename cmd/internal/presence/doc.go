// Package presence tracks which users have at least one live realtime
// connection in this process. State is never persisted; a restart drops it
// and reconnecting clients repopulate it.
package presence
