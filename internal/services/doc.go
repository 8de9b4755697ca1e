// Package services contains the outbound Spotify integrations.
//
// # Music API Client
//
// [SpotifyClient] implements [MusicService]: fetch a user's top tracks,
// create a playlist, replace a playlist's tracks. Every call is wrapped with
// a per-attempt timeout, exponential backoff with jitter on 5xx and network
// errors, and honors Retry-After on 429 responses. Failures surface as
// [*APIError] with a closed [ErrorKind] so callers can switch on the kind
// instead of sniffing strings or status codes.
//
// # Token Manager
//
// [TokenManager] hands out currently valid access tokens, refreshing through
// the OAuth refresh grant when the stored token is expired or inside the
// safety margin. Refreshes for one user are collapsed through a
// [singleflight.Group] so concurrent jobs never race two refresh calls for
// the same account; a revoked grant deactivates the user.
package services
