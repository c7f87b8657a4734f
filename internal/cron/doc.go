// Package cron schedules one-time reminders and parses their target times.
//
// ParseOneTimeAt accepts ISO datetimes and bare clock times ("11am",
// "18:30"), with optional timezone hints given either as an argument or as
// a suffix in the input itself. Bare clock times schedule the next
// occurrence; ISO datetimes must be in the future.
//
// Scheduler persists reminders through the store and polls for due ones,
// publishing each as an outbound bus message to its original chat. Because
// the store is the source of truth, reminders survive gateway restarts.
package cron
