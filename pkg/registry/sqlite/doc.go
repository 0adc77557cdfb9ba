// Package sqlite provides SQLite-backed persistence for the poetry registry.
//
// The settings row and the insert-only tokens table are written in a single
// transaction per registry mutation, so a crash never leaves a token without
// its counter update or the other way around.
package sqlite
