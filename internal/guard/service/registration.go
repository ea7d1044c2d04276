package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/merchhq/storeguard/internal/guard/domain"
	"github.com/merchhq/storeguard/internal/guard/store"
	"github.com/merchhq/storeguard/pkg/cryptox"
)

const (
	DefaultRateLimitMax    = 5
	DefaultRateLimitWindow = 15 * time.Minute
)

// emailShape is the standard local@domain check. Deliverability is the
// signup flow's problem; this only rejects obviously malformed input.
var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// disposableDomains is the static default blocklist. The configured
// allowlist document can extend it at runtime.
var disposableDomains = []string{
	"10minutemail.com",
	"dispostable.com",
	"emailondeck.com",
	"fakeinbox.com",
	"getnada.com",
	"guerrillamail.com",
	"maildrop.cc",
	"mailinator.com",
	"mintemail.com",
	"moakt.com",
	"mohmal.com",
	"mytemp.email",
	"sharklasers.com",
	"spamgourmet.com",
	"temp-mail.org",
	"tempail.com",
	"tempmail.com",
	"throwawaymail.com",
	"trashmail.com",
	"yopmail.com",
}

// botSignatures match automation in the User-Agent: headless browsers,
// crawler tokens and the common HTTP client libraries. Matching is
// case-insensitive substring.
var botSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"curl/",
	"wget/",
	"headlesschrome",
	"phantomjs",
	"puppeteer",
	"playwright",
	"selenium",
	"scrapy",
	"python-requests",
	"python-urllib",
	"go-http-client",
	"okhttp",
	"httpclient",
	"libwww-perl",
}

// RegistrationService gates account creation: honeypot, email shape,
// disposable-domain blocklist, bot user-agent heuristic and a durable
// rate limiter, evaluated in that fixed order with first match winning.
type RegistrationService struct {
	Store  store.Store
	Policy *PolicyService
	Audit  *AuditService

	// KeySalt salts the rate-counter keys so raw IPs and emails never
	// reach storage.
	KeySalt string

	// RateLimitMax / RateLimitWindow default to the package constants
	// when zero.
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// PreRegister runs the guard pipeline for one registration attempt and
// returns the first blocking error, or an allow decision.
func (s *RegistrationService) PreRegister(ctx context.Context, attempt domain.RegistrationAttempt) (domain.GuardDecision, error) {
	// 1. Honeypot. Trips before anything else, even invalid email.
	if attempt.Honeypot != "" {
		s.auditBlock(ctx, attempt, domain.ReasonHoneypot)
		return domain.GuardDecision{}, PermissionDenied(domain.ReasonHoneypot, "registration rejected")
	}

	// 2. Email shape. Not audit-logged: malformed email is user error,
	// not abuse signal.
	if !emailShape.MatchString(attempt.Email) {
		return domain.GuardDecision{}, InvalidArgument(domain.ReasonInvalidEmail, "email address is invalid")
	}

	// 3. Disposable/blocked domain.
	if s.domainBlocked(ctx, attempt.Email) {
		s.auditBlock(ctx, attempt, domain.ReasonBlockedDomain)
		return domain.GuardDecision{}, InvalidArgument(domain.ReasonBlockedDomain, "email domain is not accepted")
	}

	// 4. Bot user agent.
	if matchesBotSignature(attempt.UserAgent) {
		s.auditBlock(ctx, attempt, domain.ReasonBotUserAgent)
		return domain.GuardDecision{}, PermissionDenied(domain.ReasonBotUserAgent, "registration rejected")
	}

	// 5. Durable rate limit, atomically read-modify-written.
	allowed, err := s.consumeRateLimit(ctx, s.rateKey(attempt))
	if err != nil {
		return domain.GuardDecision{}, Internal(err)
	}
	if !allowed {
		s.auditBlock(ctx, attempt, domain.ReasonRateLimit)
		return domain.GuardDecision{}, ResourceExhausted(domain.ReasonRateLimit,
			"too many registration attempts, try again later")
	}

	return domain.GuardDecision{Allowed: true}, nil
}

// DryRun evaluates all five checks without short-circuiting, mutating
// the rate counter or writing audit events. Used for tuning the
// blocklist and heuristics; callers must gate it behind
// RequireAdminOrAllowlisted.
func (s *RegistrationService) DryRun(ctx context.Context, caller domain.Caller, attempt domain.RegistrationAttempt) (domain.GuardDecision, error) {
	if _, err := s.Policy.RequireAdminOrAllowlisted(ctx, caller); err != nil {
		return domain.GuardDecision{}, err
	}

	var reasons []string
	if attempt.Honeypot != "" {
		reasons = append(reasons, domain.ReasonHoneypot)
	}
	if !emailShape.MatchString(attempt.Email) {
		reasons = append(reasons, domain.ReasonInvalidEmail)
	} else if s.domainBlocked(ctx, attempt.Email) {
		reasons = append(reasons, domain.ReasonBlockedDomain)
	}
	if matchesBotSignature(attempt.UserAgent) {
		reasons = append(reasons, domain.ReasonBotUserAgent)
	}

	blocked, err := s.peekRateLimit(ctx, s.rateKey(attempt))
	if err != nil {
		return domain.GuardDecision{}, Internal(err)
	}
	if blocked {
		reasons = append(reasons, domain.ReasonRateLimit)
	}

	return domain.GuardDecision{Allowed: len(reasons) == 0, Reasons: reasons}, nil
}

func (s *RegistrationService) domainBlocked(ctx context.Context, email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	dom := strings.ToLower(email[at+1:])

	for _, blocked := range disposableDomains {
		if dom == blocked {
			return true
		}
	}
	for _, blocked := range s.Policy.AllowlistSnapshot(ctx).BlockedEmailDomains {
		if dom == strings.ToLower(blocked) {
			return true
		}
	}
	return false
}

func matchesBotSignature(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	if ua == "" {
		return false
	}
	for _, sig := range botSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// rateKey picks the identity signal: caller IP, falling back to the
// email when no IP is available.
func (s *RegistrationService) rateKey(attempt domain.RegistrationAttempt) string {
	signal := attempt.IP
	if signal == "" {
		signal = "email:" + strings.ToLower(attempt.Email)
	}
	return cryptox.SaltedFingerprint(s.KeySalt, signal)
}

// consumeRateLimit performs the single atomic read-modify-write on the
// counter: reset the window if it elapsed, otherwise increment, then
// decide. Running it inside one transaction stops two concurrent
// attempts from both reading a stale count and both being admitted.
func (s *RegistrationService) consumeRateLimit(ctx context.Context, key string) (bool, error) {
	maxAttempts, window := s.limits()
	now := time.Now().UTC()

	var allowed bool
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		counter, err := tx.RateCounters().GetRateCounter(ctx, key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			counter = domain.RateCounter{Key: key, WindowStart: now, Count: 1}
		case err != nil:
			return err
		case counter.Expired(now, window):
			counter.WindowStart = now
			counter.Count = 1
		default:
			counter.Count++
		}
		counter.LastAttempt = now

		if err := tx.RateCounters().PutRateCounter(ctx, counter); err != nil {
			return err
		}

		allowed = counter.Count <= maxAttempts
		return nil
	})
	return allowed, err
}

// peekRateLimit reads the counter without mutating it, for dry runs.
func (s *RegistrationService) peekRateLimit(ctx context.Context, key string) (blocked bool, err error) {
	maxAttempts, window := s.limits()

	counter, err := s.Store.RateCounters().GetRateCounter(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	return !counter.Expired(now, window) && counter.Count >= maxAttempts, nil
}

func (s *RegistrationService) limits() (int, time.Duration) {
	maxAttempts := s.RateLimitMax
	if maxAttempts <= 0 {
		maxAttempts = DefaultRateLimitMax
	}
	window := s.RateLimitWindow
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return maxAttempts, window
}

func (s *RegistrationService) auditBlock(ctx context.Context, attempt domain.RegistrationAttempt, reason string) {
	s.Audit.Record(ctx, domain.SecurityEvent{
		Type:   domain.EventRegistrationBlocked,
		Reason: reason,
		Metadata: map[string]string{
			"email_domain": emailDomain(attempt.Email),
			"user_agent":   attempt.UserAgent,
		},
	})
}

func emailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return strings.ToLower(email[at+1:])
	}
	return ""
}
