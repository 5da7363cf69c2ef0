package model

import "time"

// Show is a scheduled recital or event at a venue. Each show owns one
// show_seats row per seat of its venue.
type Show struct {
	ID        uint64    // shows.id
	VenueID   uint64    // shows.venue_id
	Title     string    // shows.title
	VenueName string    // shows.venue_name
	StartsAt  time.Time // shows.starts_at
	Status    string    // shows.status (SCHEDULED, CANCELLED, FINISHED)
	CreatedAt time.Time // shows.created_at
}
