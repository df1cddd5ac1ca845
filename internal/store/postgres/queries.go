package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/salesloop/autopilot/internal/store"
)

func (s *Store) CreateSignal(ctx context.Context, sig store.Signal) (string, error) {
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
	_, err := s.Pool.Exec(ctx, `
INSERT INTO signals(id, user_id, org_id, action_type, agent_name, signal, edit_distance, edit_fields, time_to_respond_ms, confidence_at_proposal, deal_id, contact_id, meeting_id, autonomy_tier_at_time, is_backfill, rubber_stamp, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		sig.ID, sig.UserID, sig.OrgID, sig.ActionType, sig.AgentName, sig.Signal,
		sig.EditDistance, sig.EditFields, sig.TimeToRespondMs, sig.ConfidenceAtProposal,
		sig.DealID, sig.ContactID, sig.MeetingID,
		sig.AutonomyTierAtTime, sig.IsBackfill, sig.RubberStamp, createdAt.Unix())
	if err != nil {
		return "", err
	}
	return sig.ID, nil
}

func (s *Store) ListSignalsSince(ctx context.Context, userID, orgID, actionType string, since time.Time) ([]store.Signal, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT id, user_id, org_id, action_type, agent_name, signal, edit_distance, edit_fields, time_to_respond_ms, confidence_at_proposal, deal_id, contact_id, meeting_id, autonomy_tier_at_time, is_backfill, rubber_stamp, created_at
FROM signals
WHERE user_id = $1 AND org_id = $2 AND action_type = $3 AND created_at >= $4
ORDER BY created_at ASC`, userID, orgID, actionType, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Signal
	for rows.Next() {
		var sig store.Signal
		var editDistance sql.NullInt64
		var editFields, dealID, contactID, meetingID sql.NullString
		var ttr sql.NullInt64
		var confidence sql.NullFloat64
		var createdAt int64
		if err := rows.Scan(&sig.ID, &sig.UserID, &sig.OrgID, &sig.ActionType, &sig.AgentName, &sig.Signal,
			&editDistance, &editFields, &ttr, &confidence,
			&dealID, &contactID, &meetingID,
			&sig.AutonomyTierAtTime, &sig.IsBackfill, &sig.RubberStamp, &createdAt); err != nil {
			return nil, err
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
		sig.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *Store) GetTierState(ctx context.Context, userID, actionType string) (*store.TierState, error) {
	var ts store.TierState
	var cooldown sql.NullInt64
	var updatedAt int64
	err := s.Pool.QueryRow(ctx, `
SELECT user_id, action_type, org_id, current_tier, cooldown_until, extra_required_signals, promotion_eligible, updated_at
FROM tier_state WHERE user_id = $1 AND action_type = $2`, userID, actionType).
		Scan(&ts.UserID, &ts.ActionType, &ts.OrgID, &ts.CurrentTier, &cooldown, &ts.ExtraRequiredSignals, &ts.PromotionEligible, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if cooldown.Valid {
		t := time.Unix(cooldown.Int64, 0).UTC()
		ts.CooldownUntil = &t
	}
	ts.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &ts, nil
}

func (s *Store) PutTierState(ctx context.Context, ts store.TierState) error {
	if ts.UserID == "" || ts.ActionType == "" || ts.CurrentTier == "" {
		return errors.New("user_id, action_type, and current_tier required")
	}
	updatedAt := ts.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	var cooldown *int64
	if ts.CooldownUntil != nil {
		v := ts.CooldownUntil.Unix()
		cooldown = &v
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO tier_state(user_id, action_type, org_id, current_tier, cooldown_until, extra_required_signals, promotion_eligible, updated_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id, action_type) DO UPDATE SET
  org_id=EXCLUDED.org_id,
  current_tier=EXCLUDED.current_tier,
  cooldown_until=EXCLUDED.cooldown_until,
  extra_required_signals=EXCLUDED.extra_required_signals,
  promotion_eligible=EXCLUDED.promotion_eligible,
  updated_at=EXCLUDED.updated_at`,
		ts.UserID, ts.ActionType, ts.OrgID, ts.CurrentTier, cooldown, ts.ExtraRequiredSignals, ts.PromotionEligible, updatedAt.Unix())
	return err
}

// DemoteTier performs the conditional demotion update; see the SQLite
// implementation for the concurrency contract.
func (s *Store) DemoteTier(ctx context.Context, p store.DemoteParams) (*store.TierState, error) {
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var ts store.TierState
	var cooldown sql.NullInt64
	var updatedAt int64
	err := s.Pool.QueryRow(ctx, `
UPDATE tier_state
SET current_tier = $1,
    cooldown_until = $2,
    extra_required_signals = extra_required_signals + $3,
    promotion_eligible = FALSE,
    updated_at = $4
WHERE user_id = $5 AND action_type = $6 AND current_tier = $7
RETURNING user_id, action_type, org_id, current_tier, cooldown_until, extra_required_signals, promotion_eligible, updated_at`,
		p.ToTier, p.CooldownUntil.Unix(), p.Penalty, now.Unix(),
		p.UserID, p.ActionType, p.FromTier).
		Scan(&ts.UserID, &ts.ActionType, &ts.OrgID, &ts.CurrentTier, &cooldown, &ts.ExtraRequiredSignals, &ts.PromotionEligible, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := s.GetTierState(ctx, p.UserID, p.ActionType); errors.Is(gerr, store.ErrNotFound) {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrTierConflict
		}
		return nil, err
	}
	if cooldown.Valid {
		t := time.Unix(cooldown.Int64, 0).UTC()
		ts.CooldownUntil = &t
	}
	ts.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &ts, nil
}

func (s *Store) ListAutonomousPairs(ctx context.Context) ([]store.EvalTarget, error) {
	rows, err := s.Pool.Query(ctx, `
SELECT user_id, org_id, action_type
FROM tier_state
WHERE current_tier = 'autonomous'
ORDER BY user_id, action_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.EvalTarget
	for rows.Next() {
		var t store.EvalTarget
		if err := rows.Scan(&t.UserID, &t.OrgID, &t.ActionType); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CreateAuditEvent(ctx context.Context, ev store.AuditEvent) error {
	if ev.UserID == "" || ev.ActionType == "" || ev.EventType == "" {
		return errors.New("user_id, action_type, and event_type required")
	}
	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var cooldown *int64
	if ev.CooldownUntil != nil {
		v := ev.CooldownUntil.Unix()
		cooldown = &v
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO audit_events(org_id, user_id, action_type, event_type, from_tier, to_tier, trigger_reason, cooldown_until, created_at)
VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.OrgID, ev.UserID, ev.ActionType, ev.EventType, ev.FromTier, ev.ToTier, ev.TriggerReason, cooldown, createdAt.Unix())
	return err
}

func (s *Store) ListAuditEvents(ctx context.Context, orgID, userID string, limit int) ([]store.AuditEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.Pool.Query(ctx, `
SELECT org_id, user_id, action_type, event_type, from_tier, to_tier, trigger_reason, cooldown_until, created_at
FROM audit_events
WHERE org_id = $1 AND user_id = $2
ORDER BY created_at DESC, event_id DESC
LIMIT $3`, orgID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AuditEvent
	for rows.Next() {
		var ev store.AuditEvent
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
