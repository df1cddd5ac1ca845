package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

func (s *sqliteStore) CreateSignal(ctx context.Context, sig Signal) (string, error) {
	if sig.UserID == "" || sig.OrgID == "" || sig.ActionType == "" || sig.Signal == "" {
		return "", errors.New("user_id, org_id, action_type, and signal required")
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	createdAt := sig.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.stmtCreateSignal.ExecContext(ctx,
		sig.ID, sig.UserID, sig.OrgID, sig.ActionType, sig.AgentName, sig.Signal,
		sig.EditDistance, sig.EditFields, sig.TimeToRespondMs, sig.ConfidenceAtProposal,
		sig.DealID, sig.ContactID, sig.MeetingID,
		sig.AutonomyTierAtTime, boolToInt(sig.IsBackfill), boolToInt(sig.RubberStamp), createdAt.Unix())
	if err != nil {
		return "", err
	}
	return sig.ID, nil
}

func (s *sqliteStore) ListSignalsSince(ctx context.Context, userID, orgID, actionType string, since time.Time) ([]Signal, error) {
	rows, err := s.stmtListSignals.QueryContext(ctx, userID, orgID, actionType, since.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func scanSignal(rows *sql.Rows) (Signal, error) {
	var sig Signal
	var editDistance sql.NullInt64
	var editFields, dealID, contactID, meetingID sql.NullString
	var ttr sql.NullInt64
	var confidence sql.NullFloat64
	var isBackfill, rubberStamp int64
	var createdAt int64
	if err := rows.Scan(&sig.ID, &sig.UserID, &sig.OrgID, &sig.ActionType, &sig.AgentName, &sig.Signal,
		&editDistance, &editFields, &ttr, &confidence,
		&dealID, &contactID, &meetingID,
		&sig.AutonomyTierAtTime, &isBackfill, &rubberStamp, &createdAt); err != nil {
		return Signal{}, err
	}
	if editDistance.Valid {
		v := int(editDistance.Int64)
		sig.EditDistance = &v
	}
	if editFields.Valid {
		sig.EditFields = &editFields.String
	}
	if ttr.Valid {
		sig.TimeToRespondMs = &ttr.Int64
	}
	if confidence.Valid {
		sig.ConfidenceAtProposal = &confidence.Float64
	}
	if dealID.Valid {
		sig.DealID = &dealID.String
	}
	if contactID.Valid {
		sig.ContactID = &contactID.String
	}
	if meetingID.Valid {
		sig.MeetingID = &meetingID.String
	}
	sig.IsBackfill = isBackfill != 0
	sig.RubberStamp = rubberStamp != 0
	sig.CreatedAt = time.Unix(createdAt, 0).UTC()
	return sig, nil
}

func (s *sqliteStore) GetTierState(ctx context.Context, userID, actionType string) (*TierState, error) {
	var ts TierState
	var cooldown sql.NullInt64
	var promotionEligible int64
	var updatedAt int64
	err := s.stmtGetTierState.QueryRowContext(ctx, userID, actionType).
		Scan(&ts.UserID, &ts.ActionType, &ts.OrgID, &ts.CurrentTier, &cooldown, &ts.ExtraRequiredSignals, &promotionEligible, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if cooldown.Valid {
		t := time.Unix(cooldown.Int64, 0).UTC()
		ts.CooldownUntil = &t
	}
	ts.PromotionEligible = promotionEligible != 0
	ts.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &ts, nil
}

// PutTierState inserts or replaces the tier state row for the pair. This is
// the promotion path's write; the demotion executor only goes through
// DemoteTier.
func (s *sqliteStore) PutTierState(ctx context.Context, ts TierState) error {
	if ts.UserID == "" || ts.ActionType == "" || ts.CurrentTier == "" {
		return errors.New("user_id, action_type, and current_tier required")
	}
	updatedAt := ts.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	var cooldown any
	if ts.CooldownUntil != nil {
		cooldown = ts.CooldownUntil.Unix()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO tier_state(user_id, action_type, org_id, current_tier, cooldown_until, extra_required_signals, promotion_eligible, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, action_type) DO UPDATE SET
  org_id=excluded.org_id,
  current_tier=excluded.current_tier,
  cooldown_until=excluded.cooldown_until,
  extra_required_signals=excluded.extra_required_signals,
  promotion_eligible=excluded.promotion_eligible,
  updated_at=excluded.updated_at`,
		ts.UserID, ts.ActionType, ts.OrgID, ts.CurrentTier, cooldown, ts.ExtraRequiredSignals, boolToInt(ts.PromotionEligible), updatedAt.Unix())
	return err
}

// DemoteTier performs the conditional demotion update. The WHERE clause keys
// on the previously observed tier and the penalty is added inside the
// statement, so two racing executions cannot both win or accrue from a stale
// base. Returns ErrTierConflict when the pair was already demoted and
// ErrNotFound when no row exists.
func (s *sqliteStore) DemoteTier(ctx context.Context, p DemoteParams) (*TierState, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var ts TierState
	var cooldown sql.NullInt64
	var promotionEligible int64
	var updatedAt int64
	err := s.DB.QueryRowContext(ctx, `
UPDATE tier_state
SET current_tier = ?,
    cooldown_until = ?,
    extra_required_signals = extra_required_signals + ?,
    promotion_eligible = 0,
    updated_at = ?
WHERE user_id = ? AND action_type = ? AND current_tier = ?
RETURNING user_id, action_type, org_id, current_tier, cooldown_until, extra_required_signals, promotion_eligible, updated_at`,
		p.ToTier, p.CooldownUntil.Unix(), p.Penalty, now.Unix(),
		p.UserID, p.ActionType, p.FromTier).
		Scan(&ts.UserID, &ts.ActionType, &ts.OrgID, &ts.CurrentTier, &cooldown, &ts.ExtraRequiredSignals, &promotionEligible, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, gerr := s.GetTierState(ctx, p.UserID, p.ActionType); errors.Is(gerr, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, ErrTierConflict
		}
		return nil, err
	}
	if cooldown.Valid {
		t := time.Unix(cooldown.Int64, 0).UTC()
		ts.CooldownUntil = &t
	}
	ts.PromotionEligible = promotionEligible != 0
	ts.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &ts, nil
}

// ListAutonomousPairs returns every pair currently in the autonomous tier,
// for the background evaluation sweep.
func (s *sqliteStore) ListAutonomousPairs(ctx context.Context) ([]EvalTarget, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT user_id, org_id, action_type
FROM tier_state
WHERE current_tier = 'autonomous'
ORDER BY user_id, action_type`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []EvalTarget
	for rows.Next() {
		var t EvalTarget
		if err := rows.Scan(&t.UserID, &t.OrgID, &t.ActionType); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateAuditEvent(ctx context.Context, ev AuditEvent) error {
	if ev.UserID == "" || ev.ActionType == "" || ev.EventType == "" {
		return errors.New("user_id, action_type, and event_type required")
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var cooldown any
	if ev.CooldownUntil != nil {
		cooldown = ev.CooldownUntil.Unix()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO audit_events(org_id, user_id, action_type, event_type, from_tier, to_tier, trigger_reason, cooldown_until, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.OrgID, ev.UserID, ev.ActionType, ev.EventType, ev.FromTier, ev.ToTier, ev.TriggerReason, cooldown, createdAt.Unix())
	return err
}

func (s *sqliteStore) ListAuditEvents(ctx context.Context, orgID, userID string, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT org_id, user_id, action_type, event_type, from_tier, to_tier, trigger_reason, cooldown_until, created_at
FROM audit_events
WHERE org_id = ? AND user_id = ?
ORDER BY created_at DESC, event_id DESC
LIMIT ?`, orgID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var reason sql.NullString
		var cooldown sql.NullInt64
		var createdAt int64
		if err := rows.Scan(&ev.OrgID, &ev.UserID, &ev.ActionType, &ev.EventType, &ev.FromTier, &ev.ToTier, &reason, &cooldown, &createdAt); err != nil {
			return nil, err
		}
		if reason.Valid {
			ev.TriggerReason = &reason.String
		}
		if cooldown.Valid {
			t := time.Unix(cooldown.Int64, 0).UTC()
			ev.CooldownUntil = &t
		}
		ev.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
