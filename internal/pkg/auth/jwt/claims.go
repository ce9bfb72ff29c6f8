package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JWT claims issued by the server.
// It includes the standard claims plus the custom identity claims needed to
// authorize users across the HTTP API.
type Payload struct {
	// StandardClaims embeds the JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer), used for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// Name is the unique username of the account holder.
	Name string `json:"name"`

	// Role is the account's role ("user" or "admin"). Moderation decisions on
	// the websocket always re-read the role from the user store; this claim
	// only drives HTTP-side display and authorization.
	Role string `json:"role"`

	// Avatar is the public URL of the user's profile picture, if any.
	Avatar string `json:"avatar,omitempty"`
}
