package client

// Step is the screen the controller is on.
type Step int

const (
	StepEmailEntry Step = iota
	StepConfirmSendCode
	StepCodeEntry
	StepSignupEmailEntry
	// StepFatalError is terminal; no input leaves it.
	StepFatalError
)

func (s Step) String() string {
	switch s {
	case StepEmailEntry:
		return "emailEntry"
	case StepConfirmSendCode:
		return "confirmSendCode"
	case StepCodeEntry:
		return "codeEntry"
	case StepSignupEmailEntry:
		return "signupEmailEntry"
	case StepFatalError:
		return "fatalError"
	default:
		return "unknown"
	}
}

// Mode records which flow a code entry belongs to.
type Mode int

const (
	ModeSignIn Mode = iota
	ModeSignUp
)

func (m Mode) String() string {
	if m == ModeSignUp {
		return "signUp"
	}
	return "signIn"
}
