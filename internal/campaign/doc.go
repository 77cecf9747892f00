// Package campaign models NetLink campaigns and their members.
//
// A campaign is owned by one GM and joined by players through a short invite
// code. Each membership row carries the member's role, a status flag
// (active, pending or kicked) and a denormalized copy of the member's
// character sheet the GM may edit during play.
//
// Settings are stored as a JSON blob validated against a JSON Schema; notes are
// private to the GM and never leave the backend for other members.
package campaign
