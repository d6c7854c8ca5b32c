// Package accounts provides goOTP.AccountStore implementations.
//
// [MemoryStore] keeps accounts in process and suits tests and local
// development. [PostgresStore] persists them through pgx; run [Migrate] once
// at startup to create its schema.
//
// Both stores expect emails already normalized by the engine and report
// goOTP.ErrUserNotFound and goOTP.ErrAccountExists as the engine requires.
package accounts
