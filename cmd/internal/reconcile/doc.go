// Package reconcile removes account leftovers that inline cleanup could not.
//
// The session authority enqueues an account:purge task when a registration
// compensation or an account deletion leaves a row, a graph node or cache
// keys behind. The worker deletes whatever remains; every step tolerates the
// target being gone already, so tasks may run more than once.
package reconcile
