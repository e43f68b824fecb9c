// Package session is the LinkUp session authority.
//
// It owns registration, login, token issuance and refresh, account lookup and
// deletion. Registration touches three stores (record, graph, cache) and runs
// as a saga: a failure after the account row exists undoes the completed steps
// in reverse order, and a compensation that itself fails is handed to the
// reconciler instead of being surfaced to the caller.
//
// Access and refresh tokens are HS256 JWTs signed with separate secrets. Only
// an HMAC digest of the latest refresh token is stored, so issuing a new pair
// invalidates the previous refresh token.
//
// Errors returned from this package are always one of the sentinels in
// errors.go (possibly joined); driver errors are logged, never returned.
package session
