// Package campaign implements campaign lifecycle management.
//
// The service owns the status machine (draft → active ⇄ paused → completed)
// and lead attachment. Sending is driven by the background scheduler; the
// only lifecycle move made outside this package is the auto-pause monitor
// pausing an unhealthy campaign, which Resume undoes.
//
// Repository implementations live in repository/postgres/.
package campaign
