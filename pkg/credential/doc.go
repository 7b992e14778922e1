// Package credential stores the bearer token a customer receives after
// WhatsApp authentication.
//
// Tokens come in two shapes depending on the backend: structured JWTs and
// opaque strings. Issue tags each credential once, at issuance, so the rest
// of the system never re-guesses by parsing:
//
//	cred, err := credential.Issue(token, user, 24*time.Hour)
//
// The Store keeps the credential in a signed, SameSite=Strict cookie and
// mirrors it to an optional fallback persistence layer. The cookie is
// authoritative on read. The Refresher schedules a background token refresh
// before expiry; arming it again replaces the pending schedule rather than
// stacking timers.
package credential
