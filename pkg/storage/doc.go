// Package storage defines the credential store contract shared by the
// storage adapters and the sentinel errors they report.
//
// Adapters (memory, postgres) implement [UserStore]. Handlers never see a
// driver error: adapters translate uniqueness violations into
// [ErrConflict] and pool exhaustion into [ErrUnavailable], and wrap
// everything else with context.
package storage
