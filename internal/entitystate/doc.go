// Package entitystate computes the lifecycle state of a content entity and
// plans the backend calls that move it to a requested state.
//
// State is never stored. It is derived from ir.EntitySys on every read by a
// fixed priority order:
//
//	Deleted > Archived > (Changed | Published) > Draft
//
// An entity with a published marker is Changed when its version is at least
// two ahead of the published version and Published otherwise. Saving a
// published entity bumps the version once for the publish itself, so
// version == publishedVersion+1 means nothing was edited since.
//
// The backend only accepts archive and delete on drafts. The Planner
// therefore routes archive/delete requests through Draft first. Publishing is
// the one exception: a Changed entity (or one the UI believes is Changed) is
// republished in place without an intermediate unpublish.
package entitystate
