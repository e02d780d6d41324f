package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/noteforge/core/crypto"
	"github.com/noteforge/core/internal/shared"
)

// demoPwNonce derives a stable pw_nonce from the identifier, standing in
// for the value a real deployment fetches from the server's auth-params
// endpoint before every login.
func demoPwNonce(identifier string) string {
	sum := sha256.Sum256([]byte("demo-nonce:" + identifier))
	return hex.EncodeToString(sum[:])
}

// register mints a fresh pw_nonce for a new identifier and remembers it
// for subsequent logins, standing in for the one-time account-creation
// round trip a real deployment makes against its auth server.
func (a *app) register(ctx context.Context) {
	userName, err := getSimpleText(a.reader, "Choose an email", os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	if _, exists := a.registered[userName]; exists {
		fmt.Fprintln(os.Stderr, "already registered:", userName)
		return
	}

	nonce, err := crypto.NewPwNonce()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	a.registered[userName] = crypto.AuthParams{
		Identifier: userName,
		Version:    string(crypto.V003),
		PwCost:     130000,
		PwNonce:    nonce,
	}
	fmt.Fprintln(os.Stdout, "registered", userName, "- now run login")
}

// login derives the user's key hierarchy from a password (§4.1). On
// success the session is online; on derivation failure it stays
// disabled until the user retries.
func (a *app) login(ctx context.Context) {
	userName, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}

	password, err := getPassword(os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	defer shared.WipeByteArray(password)

	params, ok := a.registered[userName]
	if !ok {
		// Unregistered identifier (e.g. an account from a prior session):
		// derive a stable nonce instead of refusing the login outright.
		params = crypto.AuthParams{
			Identifier: userName,
			Version:    string(crypto.V003),
			PwCost:     130000,
			PwNonce:    demoPwNonce(userName),
		}
	}

	keys, err := crypto.DeriveKeys(string(password), params)
	if err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		a.setMode(modeDisabled)
		return
	}

	a.keys = keys
	a.userName = userName
	a.setMode(modeOnline)
	fmt.Fprintln(os.Stdout, "login successful")
}

// logout wipes the derived key hierarchy and locks the sync engine so no
// cycle can start mid sign-out (§4.5, §7).
func (a *app) logout(ctx context.Context) {
	a.engine.Lock()
	defer a.engine.Unlock()
	a.keys.Wipe()
	a.keys = nil
	a.userName = ""
	a.setMode(modeDisabled)
	fmt.Fprintln(os.Stdout, "logged out")
}
