// Package client implements the sign-in step controller that drives the goOTP
// HTTP API from a user interface.
//
// [Controller] is a closed state machine over [Step]. It owns the email being
// entered, the six code slots and the single visible error message; the UI
// renders [Controller.State] and forwards user input to the controller's
// methods. Calls that reach the server block until the response arrives and
// must not be made from a goroutine the UI needs to stay responsive.
//
// [HTTPAPI] is the production [API] implementation.
package client
