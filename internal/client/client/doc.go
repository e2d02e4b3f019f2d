// Package client talks to the chat backend over HTTP.
//
// # Overview
//
//  1. Client is the transport-agnostic contract used by the services:
//     auth (check, login/signup, OTP, profile) and messages (roster,
//     history, send, mark seen).
//  2. HTTPClient implements it with net/http and JSON. Every request reads
//     the token from a TokenSource and, when present, sends it both as
//     "Authorization: Bearer <token>" and as a plain "token" header.
//  3. InitDatabase and RunMigrations bootstrap the local SQLite database the
//     token store lives in.
//
// # Error Handling
//
// Transport failures wrap ErrUnavailable. Backend failures are *APIError;
// a 401 matches ErrUnauthorized via errors.Is. A 401 from the auth check
// endpoint is additionally wrapped in ErrSilent so the startup probe stays
// quiet.
package client
