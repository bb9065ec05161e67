// Package domain contains the shared domain model for the relationship
// intelligence engine: interaction events, relationship profiles, lead
// scores, smart lists, duplicate groups, and alerts.
//
// Types here are plain data with json/db tags and no behavior beyond
// small derivation helpers; all scoring and lifecycle logic lives in the
// engine packages that consume them.
package domain
