package services

import (
	"golang.org/x/oauth2"

	"github.com/desertthunder/botm/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// OAuthScopes are the grants required to read a user's listening history
// and publish playlists on their behalf.
var OAuthScopes = []string{
	"playlist-modify-private",
	"playlist-modify-public",
	"user-top-read",
	"user-read-private",
}

// OAuthConfig builds the [oauth2.Config] for the Spotify authorization code
// flow from the application credentials.
func OAuthConfig(creds shared.SpotifyConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       OAuthScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}
}
