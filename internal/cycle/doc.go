// Package cycle implements the sound cycle state machine.
//
// While alarms are active the Controller alternates a sounding phase and a
// silent phase of fixed durations. At most one transition timer is pending;
// every schedule cancels the previous timer and bumps a generation number,
// so callbacks that fired but lost the race for the owner's lock are dropped.
package cycle
