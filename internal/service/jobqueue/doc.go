// Package jobqueue implements the durable job queue: enqueue, exclusive
// claim, complete and fail-with-backoff over a Repository.
//
// Claim, Complete and Fail are the only operations that mutate a job after
// it is inserted. State rules live in domain.Job; repositories apply them
// under a row lock so concurrent workers never observe a half-applied
// transition.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package jobqueue
