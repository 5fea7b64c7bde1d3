package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/dmxx/dmxx-server/internal/database/models"
	"github.com/dmxx/dmxx-server/internal/database/repositories"
	"github.com/dmxx/dmxx-server/internal/metrics"
)

// Action names a permission check an authenticated client can attempt.
type Action string

const (
	ActionControl     Action = "control"
	ActionRecallScene Action = "recall_scene"
	ActionEditPatch   Action = "edit_patch"
	ActionPark        Action = "park"
	ActionHighlight   Action = "highlight"
	ActionBypass      Action = "bypass"
	ActionAdminister  Action = "administer"
)

// Profile is the in-memory, permission-bearing form of an AccessProfile.
type Profile struct {
	ID           string
	Name         string
	PasswordHash string
	Permissions  map[Action]bool
}

// Gate is the auth/permission component: it loads access profiles once per
// snapshot, verifies logins, and checks permissions in-process with no
// per-request database round trip.
type Gate struct {
	log     *logrus.Logger
	issuer  *TokenIssuer
	wl      *Whitelist
	limiter *rate.Limiter
	audit   *repositories.AuditRepository

	mu       sync.RWMutex
	profiles map[string]*Profile // keyed by ID
	byName   map[string]*Profile // keyed by Name, for login lookup
}

// NewGate builds a Gate. loginRateLimitRPS bounds login attempts globally
// as defense in depth alongside the constant-time password comparison.
func NewGate(log *logrus.Logger, issuer *TokenIssuer, wl *Whitelist, audit *repositories.AuditRepository, loginRateLimitRPS float64) *Gate {
	return &Gate{
		log:      log,
		issuer:   issuer,
		wl:       wl,
		limiter:  rate.NewLimiter(rate.Limit(loginRateLimitRPS), 5),
		audit:    audit,
		profiles: make(map[string]*Profile),
		byName:   make(map[string]*Profile),
	}
}

// LoadProfiles replaces the in-memory profile set from a configuration
// snapshot.
func (g *Gate) LoadProfiles(rows []models.AccessProfile) {
	profiles := make(map[string]*Profile, len(rows))
	byName := make(map[string]*Profile, len(rows))
	for _, row := range rows {
		p := &Profile{
			ID:           row.ID,
			Name:         row.Name,
			PasswordHash: row.PasswordHash,
			Permissions: map[Action]bool{
				ActionControl:     row.CanControl,
				ActionRecallScene: row.CanRecallScene,
				ActionEditPatch:   row.CanEditPatch,
				ActionPark:        row.CanPark,
				ActionHighlight:   row.CanHighlight,
				ActionBypass:      row.CanBypass,
				ActionAdminister:  row.CanAdminister,
			},
		}
		profiles[p.ID] = p
		byName[p.Name] = p
	}

	g.mu.Lock()
	g.profiles = profiles
	g.byName = byName
	g.mu.Unlock()
}

// IPAllowed reports whether a remote address is permitted to connect at all.
func (g *Gate) IPAllowed(remoteAddr string) bool {
	return g.wl.Allowed(remoteAddr)
}

// Login verifies a profile name/password pair and mints a session token
// bound to a client fingerprint. It is rate-limited globally, and every
// attempt (success or failure) is audited.
func (g *Gate) Login(ctx context.Context, profileName, password, clientFingerprint, remoteAddr string) (string, error) {
	if !g.limiter.Allow() {
		g.auditAttempt(ctx, "", clientFingerprint, "login", false, "rate limited", remoteAddr)
		return "", fmt.Errorf("auth: too many login attempts, try again shortly")
	}

	g.mu.RLock()
	profile, ok := g.byName[profileName]
	g.mu.RUnlock()
	if !ok {
		g.auditAttempt(ctx, "", clientFingerprint, "login", false, "unknown profile", remoteAddr)
		return "", fmt.Errorf("auth: invalid credentials")
	}

	if !ComparePassword(password, profile.PasswordHash) {
		g.auditAttempt(ctx, profile.ID, clientFingerprint, "login", false, "bad password", remoteAddr)
		return "", fmt.Errorf("auth: invalid credentials")
	}

	token, err := g.issuer.Issue(profile.ID, profile.Name, clientFingerprint)
	if err != nil {
		g.auditAttempt(ctx, profile.ID, clientFingerprint, "login", false, err.Error(), remoteAddr)
		return "", fmt.Errorf("auth: failed to issue token: %w", err)
	}

	g.auditAttempt(ctx, profile.ID, clientFingerprint, "login", true, "", remoteAddr)
	return token, nil
}

// Authenticate verifies a session token and checks its client fingerprint
// still matches the connection presenting it.
func (g *Gate) Authenticate(tokenString, clientFingerprint string) (*Claims, error) {
	claims, err := g.issuer.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.ClientFingerprint != clientFingerprint {
		return nil, fmt.Errorf("auth: token does not match this connection")
	}
	return claims, nil
}

// Check reports whether the profile named in claims may perform action,
// auditing any denial.
func (g *Gate) Check(ctx context.Context, claims *Claims, action Action, remoteAddr string) bool {
	g.mu.RLock()
	profile, ok := g.profiles[claims.ProfileID]
	g.mu.RUnlock()
	if !ok {
		g.auditAttempt(ctx, claims.ProfileID, claims.ClientFingerprint, string(action), false, "profile no longer exists", remoteAddr)
		metrics.AuthDenials.WithLabelValues(string(action)).Inc()
		return false
	}
	allowed := profile.Permissions[action]
	if !allowed {
		g.auditAttempt(ctx, profile.ID, claims.ClientFingerprint, string(action), false, "permission denied", remoteAddr)
		metrics.AuthDenials.WithLabelValues(string(action)).Inc()
	}
	return allowed
}

func (g *Gate) auditAttempt(ctx context.Context, profileID, clientID, action string, allowed bool, reason, remoteAddr string) {
	if g.audit == nil {
		return
	}
	entry := models.AuditLogEntry{
		ProfileID:  profileID,
		ClientID:   clientID,
		Action:     action,
		Allowed:    allowed,
		Reason:     reason,
		RemoteAddr: remoteAddr,
		CreatedAt:  time.Now(),
	}
	if err := g.audit.Record(ctx, entry); err != nil {
		g.log.WithError(err).Warn("auth: failed to write audit log entry")
	}
}
