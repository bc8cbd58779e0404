// Package client is the Go SDK for a phoneAuth server.
//
// A Client holds one session token. Requests sent through Client.Do carry it as
// a bearer credential. When the token is inside the renew threshold, the first
// request starts a refresh and every concurrent request waits for that same
// refresh, so N racing requests cause exactly one refresh call. A failed
// refresh or any 401 clears the session and surfaces ErrReauthRequired.
package client
