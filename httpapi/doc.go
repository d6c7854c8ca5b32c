// Package httpapi serves the goOTP JSON contract over net/http.
//
// All action routes live under /api and accept POST with a JSON body:
//
//	/api/check-user       {email}                         -> {exists, nextStep?}
//	/api/send-code        {email}                         -> {success, message?}
//	/api/signup           {email}                         -> {success, message?}
//	/api/verify-code      {email, code}                   -> {success, message?, token?}
//	/api/complete-signup  {email, verificationToken, password?, nickname?, country?, birthdate?} -> {success, token}
//	/api/login-password   {email, password}               -> {success, token}
//
// complete-signup needs the token returned by verify-code for the same email.
// GET /api/session returns the email of a valid bearer token and GET /metrics
// serves the metrics handler when one is configured.
//
// Failure bodies carry a fixed user-facing message; internal error detail is
// logged, never returned.
package httpapi
