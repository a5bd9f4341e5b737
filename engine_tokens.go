package authcore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/swiftdrop/authcore/internal"
	"github.com/swiftdrop/authcore/internal/stores"
	"github.com/swiftdrop/authcore/jwt"
)

// IssueTokenPair creates and persists a fresh access/refresh pair for a
// subject. The refresh record is keyed by the token's jti and indexed in
// the subject's active set, both with TTL equal to the refresh lifetime.
func (e *Engine) IssueTokenPair(ctx context.Context, subjectID, role string, device DeviceMetadata) (*TokenPair, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if subjectID == "" {
		return nil, errors.New("subject id is required")
	}

	pair, record, err := e.issuePair(ctx, subjectID, role, device)
	if err != nil {
		return nil, err
	}

	e.emitEvent(ctx, AuditEvent{
		EventType: EventTokenIssued,
		SubjectID: subjectID,
		IP:        record.Device.IP,
		Success:   true,
	})

	return pair, nil
}

// issuePair signs a pair and persists its refresh record.
func (e *Engine) issuePair(ctx context.Context, subjectID, role string, device DeviceMetadata) (*TokenPair, *stores.RefreshRecord, error) {
	pair, err := e.jwtManager.CreatePair(subjectID, role)
	if err != nil {
		return nil, nil, fmt.Errorf("sign token pair: %w", err)
	}

	now := time.Now().UTC()
	record := &stores.RefreshRecord{
		TokenID:    pair.TokenID,
		SubjectID:  subjectID,
		TokenHash:  internal.HashToken(pair.RefreshToken),
		Device:     device,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  pair.RefreshExpiresAt,
	}

	saveCtx, cancel := e.opCtx(ctx)
	defer cancel()
	if err := e.refreshStore.Save(saveCtx, record); err != nil {
		return nil, nil, storeErr(err)
	}

	return pair, record, nil
}

// VerifyAccess validates an access token and returns its claims. Access
// tokens are stateless; only signature and registered claims are checked.
func (e *Engine) VerifyAccess(ctx context.Context, token string) (*Claims, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.parseToken(token, jwt.TypeAccess)
}

// VerifyRefresh validates a refresh token and checks its jti against the
// revocation blacklist. By default an unreachable blacklist rejects the
// token; Config.Security.FailOpenRevocationCheck restores acceptance.
func (e *Engine) VerifyRefresh(ctx context.Context, token string) (*Claims, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	claims, err := e.parseToken(token, jwt.TypeRefresh)
	if err != nil {
		return nil, err
	}

	checkCtx, cancel := e.opCtx(ctx)
	defer cancel()

	revoked, err := e.blacklist.Contains(checkCtx, claims.ID)
	if err != nil {
		if e.config.Security.FailOpenRevocationCheck {
			return claims, nil
		}
		return nil, storeErr(err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

func (e *Engine) parseToken(token string, expected jwt.TokenType) (*Claims, error) {
	claims, err := e.jwtManager.Parse(token, expected)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrWrongType):
		return nil, ErrTokenWrongType
	default:
		return nil, ErrTokenInvalid
	}
}

// RotateRefreshToken exchanges a valid refresh token for a new pair and
// retires the old one. The retire step is single-winner: of several
// concurrent calls presenting the same token, exactly one receives a new
// pair and the rest get ErrTokenRevoked.
func (e *Engine) RotateRefreshToken(ctx context.Context, refreshToken string, device DeviceMetadata) (*TokenPair, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	claims, err := e.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	userCtx, cancel := e.opCtx(ctx)
	user, err := e.userProvider.GetUserByID(userCtx, claims.Subject)
	cancel()
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrAccountBlocked
		}
		return nil, storeErr(err)
	}
	if user.Status != StatusActive {
		return nil, ErrAccountBlocked
	}

	// Carry forward the original device metadata when the caller has none.
	if device == (DeviceMetadata{}) {
		getCtx, cancel := e.opCtx(ctx)
		if old, err := e.refreshStore.Get(getCtx, claims.ID); err == nil {
			device = old.Device
		}
		cancel()
	}

	pair, _, err := e.issuePair(ctx, claims.Subject, user.Role, device)
	if err != nil {
		return nil, err
	}

	consumeCtx, cancel := e.opCtx(ctx)
	err = e.refreshStore.Consume(consumeCtx, claims.Subject, claims.ID, internal.HashToken(refreshToken), "rotated")
	cancel()
	if err != nil {
		// The new pair was persisted before the old one was retired; undo
		// it so the loser leaves no live credentials behind.
		e.discardPair(ctx, claims.Subject, pair.TokenID)

		switch {
		case errors.Is(err, stores.ErrRefreshNotFound):
			e.emitEvent(ctx, AuditEvent{
				EventType: EventRefreshReuse,
				SubjectID: claims.Subject,
				IP:        device.IP,
				Success:   false,
				Error:     "refresh record already consumed",
			})
			return nil, ErrTokenRevoked
		case errors.Is(err, stores.ErrRefreshHashMismatch):
			return nil, ErrTokenInvalid
		default:
			return nil, storeErr(err)
		}
	}

	e.emitEvent(ctx, AuditEvent{
		EventType: EventTokenRefreshed,
		SubjectID: claims.Subject,
		IP:        device.IP,
		Success:   true,
	})

	return pair, nil
}

func (e *Engine) discardPair(ctx context.Context, subjectID, tokenID string) {
	revokeCtx, cancel := e.opCtx(ctx)
	defer cancel()
	_ = e.refreshStore.Revoke(revokeCtx, subjectID, tokenID, "rotation_aborted")
}

// RevokeToken invalidates a refresh token. It is best-effort and
// idempotent: malformed tokens, already revoked tokens, and store
// failures are all silently absorbed.
func (e *Engine) RevokeToken(ctx context.Context, refreshToken string) {
	if e.checkOpen() != nil {
		return
	}

	claims, err := e.parseToken(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return
	}

	revokeCtx, cancel := e.opCtx(ctx)
	defer cancel()

	_ = e.refreshStore.Revoke(revokeCtx, claims.Subject, claims.ID, "revoked")

	// The record may have already expired or been consumed; keep the
	// blacklist marker alive for the token's remaining signed lifetime
	// regardless, so verification rejects it either way.
	if claims.ExpiresAt != nil {
		_ = e.blacklist.Add(revokeCtx, claims.ID, "revoked", time.Until(claims.ExpiresAt.Time))
	}

	e.emitEvent(ctx, AuditEvent{
		EventType: EventTokenRevoked,
		SubjectID: claims.Subject,
		Success:   true,
	})
}

// RevokeAllForSubject retires every active refresh token of a subject,
// typically on password change or account compromise.
func (e *Engine) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	listCtx, cancel := e.opCtx(ctx)
	ids, err := e.refreshStore.SubjectTokenIDs(listCtx, subjectID)
	cancel()
	if err != nil {
		return storeErr(err)
	}

	var errs []error
	for _, id := range ids {
		revokeCtx, cancel := e.opCtx(ctx)
		if err := e.refreshStore.Revoke(revokeCtx, subjectID, id, "revoke_all"); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	clearCtx, cancel := e.opCtx(ctx)
	if err := e.refreshStore.ClearSubject(clearCtx, subjectID); err != nil {
		errs = append(errs, err)
	}
	cancel()

	if len(errs) > 0 {
		return storeErr(errors.Join(errs...))
	}

	e.emitEvent(ctx, AuditEvent{
		EventType: EventTokenRevoked,
		SubjectID: subjectID,
		Success:   true,
		Metadata:  map[string]string{"revoked": strconv.Itoa(len(ids)), "scope": "all"},
	})

	return nil
}
