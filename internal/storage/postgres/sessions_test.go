package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/openpayments"
	"github.com/AnthonyGillesRudolfo/payment-authorization-orchestrator/internal/payment"
)

var at = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (*SessionRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSessionRepository(db), mock
}

func TestSaveInitiatedUsesSessionID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_sessions")).
		WithArgs("s1", "s1", "INITIATED", "Service payment", "100",
			nil, nil, nil, nil,
			nil, nil, nil,
			nil, nil, nil,
			nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Save(context.Background(), payment.Transition{
		To:      payment.StatusInitiated,
		Session: payment.Session{ID: "s1", AmountRequested: decimal.NewFromInt(100), Description: "Service payment"},
		At:      at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSavePendingRekeysToContinuation(t *testing.T) {
	repo, mock := newMockRepo(t)
	debit := &openpayments.Amount{Value: "10150", AssetCode: "USD", AssetScale: 2}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM payment_sessions WHERE session_key = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_sessions")).
		WithArgs("ck", "s1", "PENDING_AUTHORIZATION", "", "100",
			"ip1", "q1", nil, nil,
			"10150", "USD", int64(2),
			nil, nil, nil,
			nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Save(context.Background(), payment.Transition{
		From:            payment.StatusInitiated,
		To:              payment.StatusAwaitingAuthorization,
		ContinuationKey: "ck",
		Session: payment.Session{
			ID: "s1", AmountRequested: decimal.NewFromInt(100),
			IncomingPaymentID: "ip1", QuoteID: "q1", DebitAmount: debit,
		},
		At: at,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResumeKeepsRequestedAmount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_sessions")).
		WithArgs("ck", "s2", "COMPLETED", "", nil,
			nil, "q1", "op1", "COMPLETED",
			nil, nil, nil,
			nil, nil, nil,
			nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo.ObserveTransition(context.Background(), payment.Transition{
		From:            payment.StatusAwaitingAuthorization,
		To:              payment.StatusCompleted,
		ContinuationKey: "ck",
		Session:         payment.Session{ID: "s2", QuoteID: "q1", PaymentID: "op1", PaymentState: "COMPLETED"},
		At:              at,
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletedSupersedesFailedRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	guard := "WHERE payment_sessions.status <> 'COMPLETED'\n\t\tAND (payment_sessions.status <> 'FAILED' OR EXCLUDED.status = 'COMPLETED')"
	assert.Contains(t, upsertSession, guard)

	key := "ck"
	for _, to := range []payment.Status{payment.StatusFailed, payment.StatusCompleted} {
		reason := ""
		var reasonArg any
		if to == payment.StatusFailed {
			reason = "wallet resolution failed"
			reasonArg = reason
		}
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(guard)).
			WithArgs(key, "s3", string(to), "", nil,
				nil, "q1", sqlmock.AnyArg(), sqlmock.AnyArg(),
				nil, nil, nil,
				nil, nil, nil,
				reasonArg, at).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		s := payment.Session{ID: "s3", QuoteID: "q1", Reason: reason}
		if to == payment.StatusCompleted {
			s.PaymentID, s.PaymentState = "op1", "COMPLETED"
		}
		require.NoError(t, repo.Save(context.Background(), payment.Transition{
			From:            payment.StatusAwaitingAuthorization,
			To:              to,
			ContinuationKey: key,
			Session:         s,
			At:              at,
		}))
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_sessions")).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Save(context.Background(), payment.Transition{To: payment.StatusInitiated, Session: payment.Session{ID: "s1"}, At: at})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

var sessionColumns = []string{
	"session_key", "session_id", "status", "description", "amount_requested",
	"incoming_payment_id", "quote_id", "payment_id", "payment_state",
	"debit_value", "debit_asset_code", "debit_asset_scale",
	"receive_value", "receive_asset_code", "receive_asset_scale",
	"reason", "created_at", "updated_at",
}

func TestGetSession(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_sessions")).
		WithArgs("ck").
		WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(
			"ck", "s1", "COMPLETED", "Service payment", "100",
			"ip1", "q1", "op1", "COMPLETED",
			"10000", "USD", int64(2),
			"10000", "USD", int64(2),
			nil, at, at,
		))

	rec, err := repo.Get(context.Background(), "ck")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusCompleted, rec.Status)
	assert.Equal(t, "op1", rec.PaymentID)
	assert.Equal(t, &openpayments.Amount{Value: "10000", AssetCode: "USD", AssetScale: 2}, rec.DebitAmount)
	assert.Empty(t, rec.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_sessions")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "db", Port: 5432, Database: "payments", User: "svc", Password: "pw"}
	assert.Equal(t, "host=db port=5432 dbname=payments user=svc password=pw sslmode=disable", cfg.DSN())
	assert.True(t, cfg.Enabled())
	assert.False(t, DatabaseConfig{}.Enabled())
}
