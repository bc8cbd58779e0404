// Package password implements the pluggable one-way hash used for password
// accounts.
//
// # Output format
//
// Argon2 hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes use the standard $2a$ modular crypt format.
//
// Callers select an implementation at startup through the [Hasher] interface.
// Neither implementation logs or stores plaintext.
package password
