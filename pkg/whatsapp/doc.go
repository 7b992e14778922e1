// Package whatsapp authenticates customers over WhatsApp, by magic link or
// one-time code.
//
// Magic links are single-use tokens valid for 15 minutes, sealed with an
// HMAC and carrying the phone, store, device fingerprint, and ordering
// context they were requested in. Requests are rate limited per phone and
// per device, and an attempt counts the moment it is accepted so failed
// deliveries still burn quota. Because WhatsApp opens links in its own
// in-app browser, a device mismatch at verification time warns by default
// instead of rejecting.
//
// The code flow delegates OTP delivery and validation to the platform
// backend, retrying transient failures up to three times with a linearly
// growing delay. Backend verdicts with 4xx statuses are final and never
// retried; a wrong code is an unsuccessful CodeResult, not an error.
package whatsapp
