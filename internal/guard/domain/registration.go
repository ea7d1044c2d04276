package domain

// Rejection reasons emitted by the registration guard, in the order the
// checks run. The first tripped check wins outside of test mode.
const (
	ReasonHoneypot      = "honeypot_filled"
	ReasonInvalidEmail  = "invalid_email"
	ReasonBlockedDomain = "blocked_email_domain"
	ReasonBotUserAgent  = "bot_user_agent"
	ReasonRateLimit     = "rate_limit"
)

// RegistrationAttempt is the pre-registration payload under inspection.
type RegistrationAttempt struct {
	Email     string
	Honeypot  string // the hidden "website" form field; humans leave it empty
	UserAgent string
	IP        string
}

// GuardDecision is the dry-run (test mode) result: every reason that
// would have blocked the attempt, without short-circuiting.
type GuardDecision struct {
	Allowed bool
	Reasons []string
}
