// Package server provides HTTP routing, middleware, and the web surface for
// enrollment and run triggering.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Enrollment
//
// [EnrollmentHandler] implements the OAuth2 authorization code flow: /connect
// redirects to the Spotify consent page with a random state token stored in a
// short-lived cookie, /callback validates the state, exchanges the code,
// resolves the profile, and enrolls the user. /disconnect deactivates a user
// without discarding their tokens.
//
// # Run Trigger
//
// [GenerateHandler] starts a generation run for the current month, or for a
// single user when the spotify_id parameter is given. The route is protected
// with [BasicAuth] so the scheduler's credential is the only thing that can
// trigger a run. A response status of 500 with a tally body means at least
// one user failed and the trigger should be retried; committed users are
// skipped on the retry.
package server
