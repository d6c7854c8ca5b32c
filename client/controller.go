package client

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrBusy is returned when an action needs the server while another call
	// is still outstanding.
	ErrBusy = errors.New("client: request already in flight")
	// ErrInvalidStep is returned for an action the current step does not offer.
	ErrInvalidStep = errors.New("client: action not available in current step")
	// ErrInvalidSlot is returned for a slot index outside [0, CodeLength).
	ErrInvalidSlot = errors.New("client: slot index out of range")
)

// Messages shown in State.ErrorMessage.
const (
	MsgUserNotFound  = "We couldn't find an account with that username."
	MsgCodeRejected  = "That code didn't work. Check the code and try again."
	MsgAccountExists = "An account with this email already exists."
	MsgSignupFailed  = "We couldn't create your account. Please try again."
	MsgNetwork       = "Network error. Please try again."
	MsgTryAgain      = "Something went wrong. Please try again."
)

const nextStepVerify = "verify"

// CheckUserResponse is the body of /api/check-user.
type CheckUserResponse struct {
	Exists   bool   `json:"exists"`
	NextStep string `json:"nextStep,omitempty"`
}

// Response is the body of every other action route.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

// SignupRequest is the body of /api/complete-signup. VerificationToken is the
// token returned by a successful VerifyCode for Email.
type SignupRequest struct {
	Email             string `json:"email"`
	VerificationToken string `json:"verificationToken"`
	Password          string `json:"password,omitempty"`
	Nickname          string `json:"nickname,omitempty"`
	Country           string `json:"country,omitempty"`
	Birthdate         string `json:"birthdate,omitempty"`
}

// API is the server surface the controller drives. A non-nil error means the
// server could not be reached, failed (see [ErrServer]) or answered with
// something that is not the contract; a rejected request is a Response with
// Success=false.
type API interface {
	CheckUser(ctx context.Context, email string) (CheckUserResponse, error)
	SendCode(ctx context.Context, email string) (Response, error)
	Signup(ctx context.Context, email string) (Response, error)
	VerifyCode(ctx context.Context, email, code string) (Response, error)
	CompleteSignup(ctx context.Context, req SignupRequest) (Response, error)
}

// Focuser moves input focus to a code slot.
type Focuser interface {
	Focus(slot int)
}

// FocuserFunc adapts a function to [Focuser].
type FocuserFunc func(slot int)

func (f FocuserFunc) Focus(slot int) { f(slot) }

// State is a snapshot of the controller for rendering.
type State struct {
	Step         Step
	Mode         Mode
	Email        string
	Digits       Digits
	Focus        int
	ErrorMessage string
	Busy         bool
	Generation   uint64
}

// Config wires a Controller. API is required.
type Config struct {
	API     API
	Focuser Focuser
	// OnAuthenticated runs after a code verifies (and, in sign-up mode, the
	// account is created). It is called without the controller lock held.
	OnAuthenticated func(email, token string)
}

// Controller is the step state machine. All methods are safe for concurrent use.
type Controller struct {
	api     API
	focuser Focuser
	onAuth  func(email, token string)

	mu     sync.Mutex
	step   Step
	mode   Mode
	email  string
	digits Digits
	focus  int
	errMsg string
	busy   bool
	gen    uint64
}

func New(cfg Config) (*Controller, error) {
	if cfg.API == nil {
		return nil, errors.New("client: API required")
	}
	return &Controller{
		api:     cfg.API,
		focuser: cfg.Focuser,
		onAuth:  cfg.OnAuthenticated,
		step:    StepEmailEntry,
	}, nil
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Step:         c.step,
		Mode:         c.mode,
		Email:        c.email,
		Digits:       c.digits,
		Focus:        c.focus,
		ErrorMessage: c.errMsg,
		Busy:         c.busy,
		Generation:   c.gen,
	}
}

// SetEmail replaces the email being typed and clears the error message.
func (c *Controller) SetEmail(email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.step != StepEmailEntry && c.step != StepSignupEmailEntry {
		return ErrInvalidStep
	}
	c.email = email
	c.errMsg = ""
	return nil
}

// SubmitEmail asks the server whether the email has an account. Only an
// existing account with the "verify" hint advances to StepConfirmSendCode.
func (c *Controller) SubmitEmail(ctx context.Context) error {
	c.mu.Lock()
	if err := c.beginLocked(StepEmailEntry); err != nil {
		c.mu.Unlock()
		return err
	}
	gen, email := c.gen, c.email
	c.mu.Unlock()

	res, err := c.api.CheckUser(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.finishLocked(gen) {
		return nil
	}
	if err != nil {
		c.errMsg = failureMessage(err)
		return err
	}
	if !res.Exists || res.NextStep != nextStepVerify {
		c.errMsg = MsgUserNotFound
		return nil
	}
	c.setStepLocked(StepConfirmSendCode)
	return nil
}

// CreateAccount switches to the sign-up email screen.
func (c *Controller) CreateAccount() error {
	return c.navigate(StepSignupEmailEntry, StepEmailEntry)
}

// SignIn leaves the sign-up email screen.
func (c *Controller) SignIn() error {
	return c.navigate(StepEmailEntry, StepSignupEmailEntry)
}

// Back returns to StepEmailEntry from the send-code or code screens. Any
// response still in flight is discarded when it arrives.
func (c *Controller) Back() error {
	return c.navigate(StepEmailEntry, StepConfirmSendCode, StepCodeEntry)
}

// Abort moves to StepFatalError from any step.
func (c *Controller) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.busy = false
	c.setStepLocked(StepFatalError)
}

// SendCode requests a sign-in code and moves to StepCodeEntry once the server
// accepts it. Any failure keeps the controller on the confirm screen.
func (c *Controller) SendCode(ctx context.Context) error {
	c.mu.Lock()
	if err := c.beginLocked(StepConfirmSendCode); err != nil {
		c.mu.Unlock()
		return err
	}
	gen, email := c.gen, c.email
	c.mu.Unlock()

	res, err := c.api.SendCode(ctx, email)

	c.mu.Lock()
	if !c.finishLocked(gen) {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.errMsg = failureMessage(err)
		c.mu.Unlock()
		return err
	}
	if !res.Success {
		c.errMsg = messageOr(res.Message, MsgTryAgain)
		c.mu.Unlock()
		return nil
	}
	c.mode = ModeSignIn
	c.setStepLocked(StepCodeEntry)
	c.mu.Unlock()

	c.requestFocus(0)
	return nil
}

// SubmitSignup requests a sign-up code for a new email.
func (c *Controller) SubmitSignup(ctx context.Context) error {
	c.mu.Lock()
	if err := c.beginLocked(StepSignupEmailEntry); err != nil {
		c.mu.Unlock()
		return err
	}
	gen, email := c.gen, c.email
	c.mu.Unlock()

	res, err := c.api.Signup(ctx, email)

	c.mu.Lock()
	if !c.finishLocked(gen) {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		c.errMsg = failureMessage(err)
		c.mu.Unlock()
		return err
	}
	if !res.Success {
		c.errMsg = messageOr(res.Message, MsgAccountExists)
		c.mu.Unlock()
		return nil
	}
	c.mode = ModeSignUp
	c.setStepLocked(StepCodeEntry)
	c.mu.Unlock()

	c.requestFocus(0)
	return nil
}

// ResendCode requests a fresh code for the current flow and clears the slots.
func (c *Controller) ResendCode(ctx context.Context) error {
	c.mu.Lock()
	if err := c.beginLocked(StepCodeEntry); err != nil {
		c.mu.Unlock()
		return err
	}
	gen, email, mode := c.gen, c.email, c.mode
	c.mu.Unlock()

	var (
		res Response
		err error
	)
	if mode == ModeSignUp {
		res, err = c.api.Signup(ctx, email)
	} else {
		res, err = c.api.SendCode(ctx, email)
	}

	c.mu.Lock()
	if !c.finishLocked(gen) {
		c.mu.Unlock()
		return nil
	}
	c.digits = Digits{}
	c.focus = 0
	switch {
	case err != nil:
		c.errMsg = failureMessage(err)
	case !res.Success && mode == ModeSignUp:
		c.errMsg = messageOr(res.Message, MsgAccountExists)
	case !res.Success:
		c.errMsg = messageOr(res.Message, MsgTryAgain)
	}
	c.mu.Unlock()

	c.requestFocus(0)
	return err
}

// TypeDigit applies the last rune of s to slot i. A non-digit rune is
// ignored; an empty s clears the slot. Filling the last empty slot submits
// the code.
func (c *Controller) TypeDigit(ctx context.Context, i int, s string) error {
	c.mu.Lock()
	if err := c.editableLocked(i); err != nil {
		c.mu.Unlock()
		return err
	}

	focus := -1
	if s == "" {
		c.digits[i] = 0
	} else {
		r := lastRune(s)
		if !isDigit(r) {
			c.mu.Unlock()
			return nil
		}
		c.digits[i] = byte(r)
		if i < CodeLength-1 {
			c.focus = i + 1
			focus = i + 1
		}
	}
	c.errMsg = ""

	return c.afterSlotEditLocked(ctx, focus)
}

// Backspace clears slot i, or moves focus to slot i-1 when slot i is already empty.
func (c *Controller) Backspace(i int) error {
	c.mu.Lock()
	if err := c.editableLocked(i); err != nil {
		c.mu.Unlock()
		return err
	}

	focus := -1
	if c.digits[i] != 0 {
		c.digits[i] = 0
	} else if i > 0 {
		c.focus = i - 1
		focus = i - 1
	}
	c.errMsg = ""
	c.mu.Unlock()

	c.requestFocus(focus)
	return nil
}

// Paste fills slots from 0 with the first six runes of s. Nothing changes
// unless every one of those runes is a digit.
func (c *Controller) Paste(ctx context.Context, s string) error {
	c.mu.Lock()
	if err := c.editableLocked(0); err != nil {
		c.mu.Unlock()
		return err
	}

	digits, ok := pasteDigits(s)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	copy(c.digits[:], digits)
	c.focus = min(len(digits), CodeLength-1)
	c.errMsg = ""

	return c.afterSlotEditLocked(ctx, c.focus)
}

func (c *Controller) editableLocked(i int) error {
	if c.step != StepCodeEntry {
		return ErrInvalidStep
	}
	if i < 0 || i >= CodeLength {
		return ErrInvalidSlot
	}
	if c.busy {
		return ErrBusy
	}
	return nil
}

// afterSlotEditLocked releases c.mu, applies the focus request and submits
// the code when every slot is filled.
func (c *Controller) afterSlotEditLocked(ctx context.Context, focus int) error {
	if !c.digits.Full() || c.busy {
		c.mu.Unlock()
		c.requestFocus(focus)
		return nil
	}

	c.busy = true
	gen, email, code, mode := c.gen, c.email, c.digits.String(), c.mode
	c.mu.Unlock()

	c.requestFocus(focus)
	return c.verify(ctx, gen, email, code, mode)
}

func (c *Controller) verify(ctx context.Context, gen uint64, email, code string, mode Mode) error {
	res, err := c.api.VerifyCode(ctx, email, code)
	completeFailed := false
	if err == nil && res.Success && mode == ModeSignUp {
		res, err = c.api.CompleteSignup(ctx, SignupRequest{Email: email, VerificationToken: res.Token})
		completeFailed = err == nil && !res.Success
	}

	c.mu.Lock()
	if !c.finishLocked(gen) {
		c.mu.Unlock()
		return nil
	}
	if err != nil || !res.Success {
		switch {
		case err != nil:
			c.errMsg = failureMessage(err)
		case completeFailed:
			c.errMsg = MsgSignupFailed
		default:
			c.errMsg = MsgCodeRejected
		}
		c.digits = Digits{}
		c.focus = 0
		c.mu.Unlock()
		c.requestFocus(0)
		return err
	}

	c.setStepLocked(StepEmailEntry)
	c.mode = ModeSignIn
	c.email = ""
	onAuth := c.onAuth
	c.mu.Unlock()

	if onAuth != nil {
		onAuth(email, res.Token)
	}
	return nil
}

func (c *Controller) navigate(to Step, from ...Step) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	allowed := false
	for _, s := range from {
		if c.step == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return ErrInvalidStep
	}

	c.gen++
	c.busy = false
	c.mode = ModeSignIn
	c.setStepLocked(to)
	return nil
}

func (c *Controller) beginLocked(step Step) error {
	if c.step != step {
		return ErrInvalidStep
	}
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	c.errMsg = ""
	return nil
}

// finishLocked clears Busy and reports whether the response for gen still applies.
func (c *Controller) finishLocked(gen uint64) bool {
	if c.gen != gen {
		return false
	}
	c.busy = false
	return true
}

// setStepLocked changes step and resets the per-step input.
func (c *Controller) setStepLocked(step Step) {
	c.step = step
	c.digits = Digits{}
	c.errMsg = ""
	c.focus = 0
}

func (c *Controller) requestFocus(slot int) {
	if slot < 0 || c.focuser == nil {
		return
	}
	c.focuser.Focus(slot)
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}

// failureMessage picks the message for a call that returned an error.
func failureMessage(err error) string {
	if errors.Is(err, ErrServer) {
		return MsgTryAgain
	}
	return MsgNetwork
}
