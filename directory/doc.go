// Package directory is the HTTPS client for the shared cloud directory:
// presence registration/heartbeat/lookup over the `users` collection, and
// store-and-forward relay over the `offline_messages` collection.
//
// The directory is partially trusted: it never sees a secret key, and
// message confidentiality/authenticity rest entirely on the crypto
// package, not on anything the directory enforces.
//
//	c := directory.NewClient("https://directory.example.com", apiKey)
//	err := c.Register(ctx, directory.Record{Username: "alice", ...})
package directory
