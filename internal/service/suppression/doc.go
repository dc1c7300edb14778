// Package suppression implements the per-workspace do-not-contact list.
//
// It is the single source of truth for whether an address may receive
// mail. The scheduler filters suppressed leads out before assignment and
// the send handler checks again right before delivery.
//
// The service layer depends only on the Repository interface defined in
// repository.go. It never imports net/http or database/sql directly.
package suppression
