// Package state provides filesystem-backed storage for the run journal.
package state
