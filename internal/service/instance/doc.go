// Package instance keeps a single engine per host through a PID marker file.
//
// A marker naming a live process with the same executable blocks startup.
// Markers left behind by crashed processes are detected through the process
// table and replaced.
package instance
