// Package models defines the few sync-domain vocabulary terms shared
// across packages as typed constants rather than raw strings: the
// per-row dirty-bit enumeration and the User role enumeration. The
// entity graph itself (users, properties, listings, tasks, activities,
// assignees, notes, reference data) is carried end to end as
// ports.Row.Fields maps, decoded and re-encoded by internal/entitysync and
// internal/localstore/codec.go — there is no typed per-entity struct
// layer, since nothing in the engine ever needs one: handlers branch on
// field values, not on Go types.
package models

// SyncState is the local dirty bit carried by every synced row.
type SyncState string

const (
	SyncSynced  SyncState = "synced"
	SyncPending SyncState = "pending"
	SyncFailed  SyncState = "failed"
)

// Role is a User's access level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleRealtor Role = "realtor"
	RoleOther   Role = "other"
)

// TaskAssigneeID and ActivityAssigneeID build the synthetic composite key
// join rows are addressed by: assignee rows have no single natural
// primary key column, so the engine keys them "{parentID}:{userID}" for
// in-flight tracking (internal/conflict) and local-store indexing.
func TaskAssigneeID(taskID, userID string) string         { return taskID + ":" + userID }
func ActivityAssigneeID(activityID, userID string) string { return activityID + ":" + userID }
