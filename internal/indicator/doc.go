// Package indicator renders the live alarm indicator in a terminal.
//
// The bubbletea model shows the number of active alarms, the indicator line
// (sounding, silent period or attention needed) and the visible alarm, and
// lets the operator dismiss the modal or stop every alarm from the keyboard.
package indicator
