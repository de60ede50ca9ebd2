// Package entitykind enumerates the CRM entity kinds the sync engine
// understands: canonical consts plus validation/normalization helpers.
package entitykind

import "strings"

// Kind identifies one of the CRM entity tables the engine synchronizes.
type Kind string

const (
	Users                  Kind = "users"
	Properties             Kind = "properties"
	Listings               Kind = "listings"
	Tasks                  Kind = "tasks"
	Activities             Kind = "activities"
	TaskAssignees          Kind = "task_assignees"
	ActivityAssignees      Kind = "activity_assignees"
	Notes                  Kind = "notes"
	ListingTypeDefinitions Kind = "listing_type_definitions"
	ActivityTemplates      Kind = "activity_templates"
)

// All returns every entity kind the engine knows about.
func All() []Kind {
	return []Kind{
		ListingTypeDefinitions, ActivityTemplates, Users, Properties,
		Listings, Tasks, Activities, TaskAssignees, ActivityAssignees, Notes,
	}
}

// Tracked returns the entity kinds the conflict resolver tracks in-flight
// sets for. Reference data and users are synced but never observed
// mid-push by the realtime broadcast filter, so they are not tracked.
func Tracked() []Kind {
	return []Kind{
		Tasks, Activities, Listings, Properties, Notes, TaskAssignees, ActivityAssignees,
	}
}

// IsValid reports whether s names a known entity kind.
func IsValid(s string) bool {
	_, ok := Normalize(s)
	return ok
}

// Normalize maps a loosely-cased, possibly singular, entity name to its
// canonical Kind.
func Normalize(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "users":
		return Users, true
	case "property", "properties":
		return Properties, true
	case "listing", "listings":
		return Listings, true
	case "task", "tasks":
		return Tasks, true
	case "activity", "activities":
		return Activities, true
	case "task_assignee", "task_assignees":
		return TaskAssignees, true
	case "activity_assignee", "activity_assignees":
		return ActivityAssignees, true
	case "note", "notes":
		return Notes, true
	case "listing_type_definition", "listing_type_definitions":
		return ListingTypeDefinitions, true
	case "activity_template", "activity_templates":
		return ActivityTemplates, true
	default:
		return "", false
	}
}

// IsTracked reports whether the Conflict Resolver maintains an in-flight
// set for this kind.
func IsTracked(k Kind) bool {
	for _, t := range Tracked() {
		if t == k {
			return true
		}
	}
	return false
}
