// Package secureboot derives the Secure Boot V2 public key digest from
// a signing key. The digest is the only artifact the release bundle may
// carry: private key material is read within a single call, wiped on
// every exit path, and never logged or written.
package secureboot
