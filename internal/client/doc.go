// Package client provides an HTTP client for the document-analytics API.
//
// # Overview
//
// A Client holds a base URL, an Authenticator and an http.Client. Every call
// composes its endpoint by appending a relative path to the base URL and
// always ends the result with a trailing slash, which the API requires.
//
//	c, err := client.Connect("/myaccount/", "user", "secret")
//	if err != nil {
//		log.Fatalf("connect: %v", err)
//	}
//	db, err := client.OpenDatabase(ctx, c, "myaccount/reviews")
//	if err != nil {
//		log.Fatalf("open: %v", err)
//	}
//	ids, err := db.DocIDs(ctx)
//
// # URLs
//
// The root URL is the scheme, host and first path component of the base URL,
// for example "https://api.lumino.so/v3". ChangePath derives a client for a
// sub-path without re-authenticating; a path starting with '/' is resolved
// against the root URL instead of the current one.
//
// # Errors
//
// Responses outside 2xx become *StatusError with the method, URL, status and
// the first few kilobytes of the body. Transport and decoding errors are
// wrapped with fmt.Errorf:
//   - "execute request: dial tcp: connection refused"
//   - "api GET https://api.lumino.so/v3/a/db/meta/ returned status 404"
//   - "decode response: unexpected end of JSON input"
//
// The client does not retry, paginate or stream responses.
package client
