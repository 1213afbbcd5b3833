// Package schedule decides when a suite runs again.
//
// Every, Daily, Weekly and Cron build schedules in code; Parse reads the
// textual forms used by the jobsuite command. Loop runs a function on a
// schedule and never lets two runs overlap, which matters for suites: a
// second Execute on a running suite is refused.
package schedule
