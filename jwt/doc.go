// Package jwt mints and verifies the signed session tokens returned after a
// successful code verification, sign-up or password login.
package jwt
