// Package jwt issues and verifies phoneAuth session tokens.
//
// Verify enforces expiry. Refresh checks only the signature, algorithm, key id,
// issuer and audience, so a correctly signed but expired token can be exchanged
// for a fresh one. The user identity always travels in sub; older identity
// spellings are folded into it while decoding and nothing else reads them.
package jwt
