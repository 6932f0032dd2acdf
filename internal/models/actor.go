package models

import "strings"

// ActorKind is the closed set of platform user categories carried in auth tokens.
type ActorKind string

const (
	ActorStudent    ActorKind = "student"
	ActorCounsellor ActorKind = "counsellor"
	ActorVolunteer  ActorKind = "volunteer"
	ActorAdmin      ActorKind = "admin"
)

// SenderKind is the actor tag persisted alongside peer-room messages.
type SenderKind string

const (
	SenderStudent   SenderKind = "Student"
	SenderVolunteer SenderKind = "Volunteer"
)

// ParseActorKind normalizes a raw role claim into an ActorKind.
func ParseActorKind(role string) (ActorKind, bool) {
	switch ActorKind(strings.ToLower(strings.TrimSpace(role))) {
	case ActorStudent:
		return ActorStudent, true
	case ActorCounsellor:
		return ActorCounsellor, true
	case ActorVolunteer:
		return ActorVolunteer, true
	case ActorAdmin:
		return ActorAdmin, true
	default:
		return "", false
	}
}

// SenderKind maps an actor kind to the message sender tag shown in rooms.
// Volunteers are surfaced as such; everyone else posts as a student peer.
func (k ActorKind) SenderKind() SenderKind {
	if k == ActorVolunteer {
		return SenderVolunteer
	}
	return SenderStudent
}

// actorGrants is the per-kind operation table consulted by handlers and middleware.
var actorGrants = map[ActorKind]struct {
	moderateRooms   bool
	administerRooms bool
}{
	ActorStudent:    {},
	ActorCounsellor: {},
	ActorVolunteer:  {moderateRooms: true},
	ActorAdmin:      {moderateRooms: true, administerRooms: true},
}

// CanModerateRooms reports whether the kind may be assigned as a room moderator.
func (k ActorKind) CanModerateRooms() bool {
	return actorGrants[k].moderateRooms
}

// CanAdministerRooms reports whether the kind may create rooms and manage moderators.
func (k ActorKind) CanAdministerRooms() bool {
	return actorGrants[k].administerRooms
}
