package newsletter

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/parteiportal/backend/internal/apperror"
)

const (
	opTrackOpen    = "newsletter.track_open"
	opResolveClick = "newsletter.resolve_click"

	// Tracking counters share the newsletter row with send bookkeeping, so a
	// counter bump that races a chunk write is retried a few times before
	// giving up.
	trackingWriteRetries = 3
)

var msgBadRedirect = "Ungültiges Weiterleitungsziel."

// RecipientToken derives the opaque token embedded in tracking pixels for one
// recipient of one newsletter.
func RecipientToken(newsletterID, recipient string) string {
	sum := sha256.Sum256([]byte(newsletterID + ":" + strings.ToLower(strings.TrimSpace(recipient))))
	return hex.EncodeToString(sum[:])[:16]
}

// TrackOpen increments the open counter for the given recipient token. Unknown
// newsletters and tokens are counted anyway; the pixel endpoint never errors
// towards mail clients beyond not-found.
func (s *Service) TrackOpen(ctx context.Context, newsletterID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperror.New(apperror.KindInvalid, opTrackOpen+".missing_token", "Das Tracking-Token fehlt.", nil)
	}
	return s.bumpTracking(ctx, opTrackOpen, newsletterID, func(state *TrackingState) {
		state.Opens[token]++
	})
}

// ResolveClick decodes the base64url-encoded redirect target, validates its
// host against the allowlist and counts the click. The returned URL is the
// redirect destination.
func (s *Service) ResolveClick(ctx context.Context, newsletterID, encodedTarget string, allowedHosts []string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(encodedTarget))
	if err != nil {
		// Padding-tolerant fallback for encoders that emit standard base64url.
		decoded, err = base64.URLEncoding.DecodeString(strings.TrimSpace(encodedTarget))
		if err != nil {
			return "", apperror.New(apperror.KindInvalid, opResolveClick+".bad_encoding", msgBadRedirect, err)
		}
	}

	target, err := url.Parse(string(decoded))
	if err != nil || target.Scheme != "https" && target.Scheme != "http" || target.Host == "" {
		return "", apperror.New(apperror.KindInvalid, opResolveClick+".bad_target", msgBadRedirect, err)
	}
	if !hostAllowed(target.Hostname(), allowedHosts) {
		return "", apperror.New(apperror.KindInvalid, opResolveClick+".host_not_allowed", msgBadRedirect, nil)
	}

	if err := s.bumpTracking(ctx, opResolveClick, newsletterID, func(state *TrackingState) {
		state.Clicks[target.String()]++
	}); err != nil {
		return "", err
	}
	return target.String(), nil
}

func (s *Service) bumpTracking(ctx context.Context, operation, newsletterID string, bump func(*TrackingState)) error {
	var lastErr error
	for attempt := 0; attempt < trackingWriteRetries; attempt++ {
		item, err := s.find(ctx, operation, newsletterID)
		if err != nil {
			return err
		}
		state, err := DecodeTrackingState(item.TrackingJSON)
		if err != nil {
			s.logger.Error("tracking state decode failed", zap.String("operation", operation), zap.String("newsletter_id", newsletterID), zap.Error(err))
			return apperror.Internal(operation+".decode_state", err)
		}
		bump(&state)
		encoded, err := state.Encode()
		if err != nil {
			return apperror.Internal(operation+".encode_state", err)
		}

		result := s.db.WithContext(ctx).Model(&Item{}).
			Where("id = ? AND version = ?", newsletterID, item.Version).
			Updates(map[string]interface{}{
				"tracking_json": encoded,
				"version":       item.Version + 1,
			})
		if result.Error != nil {
			s.logger.Error("tracking write failed", zap.String("operation", operation), zap.Error(result.Error))
			return apperror.Internal(operation+".update_failed", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}
		lastErr = apperror.New(apperror.KindConflict, operation+".stale_version", msgStaleVersion, nil)
	}
	return lastErr
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}
