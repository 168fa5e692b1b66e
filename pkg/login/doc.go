// Package login verifies local account passwords.
//
// Hashes are stored in one of three formats and detected on read: bcrypt,
// Argon2id and the PBKDF2 layout carried over from accounts created on the
// previous platform. New passwords use CurrentPasswordVersion.
//
// LoginService counts consecutive failures per account and locks the account for
// a configurable duration once the limit is reached:
//
//	svc := login.NewLoginService(repo, users,
//		login.WithMaxFailedAttempts(5),
//		login.WithLockoutDuration(15*time.Minute))
//	u, err := svc.PasswordSignIn(ctx, "olena@example.com", password)
//
// The api subpackage serves the local sign-in form post at /account/login.
package login
