// Package crypto implements the protocol codec: passphrase-derived key
// hierarchy, per-item key wrapping, and the versioned ciphertext envelope
// ("001", "002", "003", and the "000" plaintext sentinel).
//
// Every other package in this module treats an envelope as an opaque
// string produced and consumed only here; nothing outside this package
// knows about IVs, PKCS7 padding, or the colon-delimited wire format.
package crypto
