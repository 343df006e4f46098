package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/logging"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
)

var ErrSessionNotFound = errors.New("payment session not found")

// SessionRecord is one row of payment_sessions.
type SessionRecord struct {
	Key               string
	SessionID         string
	Status            payment.Status
	Description       string
	AmountRequested   string
	IncomingPaymentID string
	QuoteID           string
	PaymentID         string
	PaymentState      string
	DebitAmount       *openpayments.Amount
	ReceiveAmount     *openpayments.Amount
	Reason            string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SessionRepository persists session transitions. Rows are keyed by
// payment.Transition.Key, so a session that pauses for authorization is
// re-keyed from its session id to its continuation key. A COMPLETED row is
// final; a FAILED row only gives way to a later COMPLETED, since a failed
// completion may be retried with the same continuation.
type SessionRepository struct {
	DB *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

const upsertSession = `
	INSERT INTO payment_sessions (
		session_key, session_id, status, description, amount_requested,
		incoming_payment_id, quote_id, payment_id, payment_state,
		debit_value, debit_asset_code, debit_asset_scale,
		receive_value, receive_asset_code, receive_asset_scale,
		reason, updated_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (session_key) DO UPDATE SET
		status = EXCLUDED.status,
		description = COALESCE(NULLIF(EXCLUDED.description, ''), payment_sessions.description),
		amount_requested = COALESCE(EXCLUDED.amount_requested, payment_sessions.amount_requested),
		incoming_payment_id = COALESCE(EXCLUDED.incoming_payment_id, payment_sessions.incoming_payment_id),
		quote_id = COALESCE(EXCLUDED.quote_id, payment_sessions.quote_id),
		payment_id = COALESCE(EXCLUDED.payment_id, payment_sessions.payment_id),
		payment_state = COALESCE(EXCLUDED.payment_state, payment_sessions.payment_state),
		debit_value = COALESCE(EXCLUDED.debit_value, payment_sessions.debit_value),
		debit_asset_code = COALESCE(EXCLUDED.debit_asset_code, payment_sessions.debit_asset_code),
		debit_asset_scale = COALESCE(EXCLUDED.debit_asset_scale, payment_sessions.debit_asset_scale),
		receive_value = COALESCE(EXCLUDED.receive_value, payment_sessions.receive_value),
		receive_asset_code = COALESCE(EXCLUDED.receive_asset_code, payment_sessions.receive_asset_code),
		receive_asset_scale = COALESCE(EXCLUDED.receive_asset_scale, payment_sessions.receive_asset_scale),
		reason = EXCLUDED.reason,
		updated_at = EXCLUDED.updated_at
	WHERE payment_sessions.status <> 'COMPLETED'
		AND (payment_sessions.status <> 'FAILED' OR EXCLUDED.status = 'COMPLETED')
`

// Save records a transition.
func (r *SessionRepository) Save(ctx context.Context, t payment.Transition) error {
	if r.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	key := t.Key()
	if key != t.Session.ID && t.From == payment.StatusInitiated {
		if _, err := tx.ExecContext(ctx, `DELETE FROM payment_sessions WHERE session_key = $1`, t.Session.ID); err != nil {
			return fmt.Errorf("rekey session %s: %w", t.Session.ID, err)
		}
	}

	s := t.Session
	var requested any
	if t.From != payment.StatusAwaitingAuthorization {
		requested = s.AmountRequested.String()
	}
	debitValue, debitCode, debitScale := amountColumns(s.DebitAmount)
	receiveValue, receiveCode, receiveScale := amountColumns(s.ReceiveAmount)

	if _, err := tx.ExecContext(ctx, upsertSession,
		key, s.ID, string(t.To), s.Description, requested,
		nullString(s.IncomingPaymentID), nullString(s.QuoteID), nullString(s.PaymentID), nullString(s.PaymentState),
		debitValue, debitCode, debitScale,
		receiveValue, receiveCode, receiveScale,
		nullString(s.Reason), t.At,
	); err != nil {
		return fmt.Errorf("failed to upsert payment session %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session tx: %w", err)
	}
	return nil
}

// ObserveTransition saves the transition and logs, rather than returns,
// storage failures.
func (r *SessionRepository) ObserveTransition(ctx context.Context, t payment.Transition) {
	if err := r.Save(ctx, t); err != nil {
		logging.FromContext(ctx).Error("payment_session_persist_failed",
			zap.String("session_key", t.Key()),
			zap.String("status", string(t.To)),
			zap.Error(err),
		)
	}
}

// Get loads a session by its key.
func (r *SessionRepository) Get(ctx context.Context, key string) (*SessionRecord, error) {
	if r.DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	row := r.DB.QueryRowContext(ctx, `
		SELECT session_key, session_id, status, description, COALESCE(amount_requested::text, ''),
			incoming_payment_id, quote_id, payment_id, payment_state,
			debit_value, debit_asset_code, debit_asset_scale,
			receive_value, receive_asset_code, receive_asset_scale,
			reason, created_at, updated_at
		FROM payment_sessions
		WHERE session_key = $1
	`, key)

	var (
		rec                                              SessionRecord
		status                                           string
		incoming, quote, paymentID, paymentState, reason sql.NullString
		debitValue, debitCode, receiveValue, receiveCode sql.NullString
		debitScale, receiveScale                         sql.NullInt32
	)
	err := row.Scan(
		&rec.Key, &rec.SessionID, &status, &rec.Description, &rec.AmountRequested,
		&incoming, &quote, &paymentID, &paymentState,
		&debitValue, &debitCode, &debitScale,
		&receiveValue, &receiveCode, &receiveScale,
		&reason, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payment session: %w", err)
	}

	rec.Status = payment.Status(status)
	rec.IncomingPaymentID = incoming.String
	rec.QuoteID = quote.String
	rec.PaymentID = paymentID.String
	rec.PaymentState = paymentState.String
	rec.Reason = reason.String
	rec.DebitAmount = scanAmount(debitValue, debitCode, debitScale)
	rec.ReceiveAmount = scanAmount(receiveValue, receiveCode, receiveScale)
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func amountColumns(a *openpayments.Amount) (sql.NullString, sql.NullString, sql.NullInt32) {
	if a == nil {
		return sql.NullString{}, sql.NullString{}, sql.NullInt32{}
	}
	return nullString(a.Value), nullString(a.AssetCode), sql.NullInt32{Int32: int32(a.AssetScale), Valid: true}
}

func scanAmount(value, code sql.NullString, scale sql.NullInt32) *openpayments.Amount {
	if !value.Valid {
		return nil
	}
	return &openpayments.Amount{Value: value.String, AssetCode: code.String, AssetScale: int(scale.Int32)}
}
