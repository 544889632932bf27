/*
Package authsdk is the client side of the admin console's session handling.

# Overview

An SDKClient owns three cooperating pieces:

  - a tokenstore.Store holding the access token and cached user profile
  - a Refresher that renews the access token through a single in-flight call
  - a Transport that attaches the token and replays requests that hit an
    expired token

The refresh token never passes through this package. The backend sets it as
an HttpOnly cookie and the client's cookie jar sends it back on refresh.

	store := tokenstore.NewMemory()
	client, err := authsdk.NewSDKClient("http://localhost:8080", store)

	// Writes the credential, then raises EventLoginSucceeded.
	login, err := client.Login(ctx, "user@example.com", "pw")

	// Authenticated calls go through the interceptor.
	me, err := client.Me(ctx)

# Token Expiry

When a protected endpoint answers 401 with errorCode "TOKEN_EXPIRED", the
transport asks the Refresher for a new token and replays the request once.
Concurrent expiries share one refresh call:

 1. every failing request joins the same flight
 2. the flight POSTs /api/auth/refresh and stores the new token
 3. each request is replayed with the token that flight produced

Any other 401, any other status, and a replay that fails again are handed
back to the caller as-is.

# Refresh Failure

A failed refresh is terminal. The store is cleared before the error reaches
anyone, every waiter receives an error wrapping ErrRefreshFailed, and nothing
retries. Callers are expected to send the user back to login:

	if errors.Is(err, authsdk.ErrRefreshFailed) {
		// session is gone; re-authenticate
	}

# Error Handling

Backend errors are *APIError values carrying the status, errorCode, message
and details. Predefined values compare with errors.Is by code:

	_, err := client.ListChallenges(ctx)
	if errors.Is(err, authsdk.ErrForbidden) {
		fmt.Println("admin only")
	}

# Authorization Hints

Session exposes the cached profile for UI decisions through pkg/authz:

	s, err := client.Session()
	if err == nil && s.IsAdmin(authz.Evaluator{}) {
		// show admin navigation
	}

These checks are cosmetic. The backend enforces the same policies.

# Thread Safety

SDKClient, Transport and Refresher are safe for concurrent use.
*/
package authsdk
