// Package auth authenticates callers of the coven-responder HTTP API.
//
// Callers present an HS256 JWT signed with auth.jwt_secret:
//
//	verifier, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := verifier.Generate("ops", []string{"!room:example.org"}, 0)
//
// The optional "chats" claim limits the token to the listed chats;
// handlers check it with FromContext(ctx).CanAccess(chatID).
package auth
