package entitysync

import "github.com/brightfield-crm/syncengine/internal/entitykind"

// Specs for the entity kinds that use the fully generic skeleton as-is.
// Users, Notes, TaskAssignees, and ActivityAssignees have their own
// dedicated files (users.go, notes.go, assignees.go) because each of them
// deviates from the generic push path; ActivityTemplates additionally
// needs two-pass FK resolution on the pull side, so it also
// gets its own SyncDown in activitytemplates.go even though its Spec
// (below) is otherwise ordinary.

var ListingTypeDefsSpec = Spec{Kind: entitykind.ListingTypeDefinitions}

var ActivityTemplatesSpec = Spec{
	Kind:         entitykind.ActivityTemplates,
	ParentFK:     "listingTypeId",
	ParentFKKind: entitykind.ListingTypeDefinitions,
}

var PropertiesSpec = Spec{Kind: entitykind.Properties}

var ListingsSpec = Spec{
	Kind:         entitykind.Listings,
	ParentFK:     "propertyId",
	ParentFKKind: entitykind.Properties,
}

var TasksSpec = Spec{
	Kind:         entitykind.Tasks,
	ParentFK:     "listingId",
	ParentFKKind: entitykind.Listings,
}

var ActivitiesSpec = Spec{
	Kind:         entitykind.Activities,
	ParentFK:     "listingId",
	ParentFKKind: entitykind.Listings,
}
