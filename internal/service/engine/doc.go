// Package engine is the notification facade of the alarm lifecycle.
//
// Service owns the alarm registry, the sound cycle controller and the
// resolution poller, and serialises every mutation under one mutex. Timer
// callbacks and poll completions take the same mutex, so all state changes
// happen in a single logical order. Observers read state through Snapshot or
// receive every published snapshot through Subscribe.
package engine
