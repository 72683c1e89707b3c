// Package chat keeps the console's view of live conversations in sync.
//
// All state is owned by a single goroutine (the loop). Transport callbacks,
// history fetches and timer deadlines never touch state directly; they post
// closures to the loop, and every closure reads the current selection at the
// moment it runs. A history result for a session that is no longer open is
// discarded instead of being written into the new timeline.
package chat
