package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peertutor/coinledger/internal/handlers/middleware"
	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/models"
	"github.com/peertutor/coinledger/internal/repository"
	"github.com/peertutor/coinledger/internal/repository/postgres"
	"github.com/peertutor/coinledger/internal/service/escrow"
	"github.com/peertutor/coinledger/internal/service/ledger"
	"github.com/peertutor/coinledger/internal/service/matching"
	"github.com/peertutor/coinledger/internal/service/notification"
	"github.com/peertutor/coinledger/internal/service/realtime"
	"github.com/peertutor/coinledger/internal/testutil"
)

const testSecret = "test-secret-key"

// newTestServer wires the production services over the given transaction and
// serves the full router, same as the real app does over the pool
func newTestServer(t *testing.T, tx pgx.Tx) (*httptest.Server, repository.Storage) {
	t.Helper()

	storage := postgres.NewStorage(tx)
	noop := logger.NewNoOpLogger()

	notificationService := notification.NewService(storage, noop)
	ledgerService := ledger.NewService(storage, notificationService, noop)
	matchingService := matching.NewService(matching.Config{}, storage, notificationService, noop)
	escrowService := escrow.NewService(escrow.Config{}, storage, notificationService, noop)
	poller := realtime.New(storage, noop)

	router := NewRouter(
		RouterConfig{SecretKey: testSecret},
		storage.User(),
		ledgerService,
		matchingService,
		escrowService,
		notificationService,
		poller,
		noop,
	)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv, storage
}

func tokenFor(t *testing.T, user models.User) string {
	t.Helper()

	claims := middleware.AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: user.ID,
		Role:   user.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	return token
}

// do sends a request and returns the status code with the raw body
func do(t *testing.T, srv *httptest.Server, method, path, token, body string) (int, string) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	return resp.StatusCode, string(respBody)
}

func jsonField(t *testing.T, body string, field string) any {
	t.Helper()

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &parsed), "body should be valid JSON: %s", body)

	return parsed[field]
}

func TestCoinsEndpoints(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("purchase then read balance and history", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			student := testutil.MustCreateUser(t, storage, "buyer", models.RoleStudent)
			token := tokenFor(t, student)

			code, body := do(t, srv, http.MethodPost, "/api/coins/purchase", token,
				`{"amount": 500, "payment_method_id": "pm_12345"}`)

			require.Equalf(t, http.StatusCreated, code, "purchase should succeed. Resp: %s", body)
			assert.Equal(t, models.TransactionKindPurchase, jsonField(t, body, "kind"))
			assert.Equal(t, models.TransactionStatusCompleted, jsonField(t, body, "status"))
			assert.Equal(t, float64(500), jsonField(t, body, "amount"))

			code, body = do(t, srv, http.MethodGet, "/api/coins/balance", token, "")
			require.Equal(t, http.StatusOK, code)
			assert.JSONEq(t, `{"balance": 500}`, body)

			code, body = do(t, srv, http.MethodGet, "/api/coins/transactions", token, "")
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, false, jsonField(t, body, "has_more"))
			transactions, ok := jsonField(t, body, "transactions").([]any)
			require.True(t, ok)
			assert.Len(t, transactions, 1)
		})
	})

	t.Run("purchase amount must be positive", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			student := testutil.MustCreateUser(t, storage, "cheapskate", models.RoleStudent)

			code, body := do(t, srv, http.MethodPost, "/api/coins/purchase", tokenFor(t, student),
				`{"amount": -5, "payment_method_id": "pm_12345"}`)

			require.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "validation_failed", jsonField(t, body, "error"))
		})
	})

	t.Run("no token means unauthorized", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, _ := newTestServer(t, tx)

			code, body := do(t, srv, http.MethodGet, "/api/coins/balance", "", "")

			require.Equal(t, http.StatusUnauthorized, code)
			assert.JSONEq(t, `{"error": "service_error", "message": "Unauthorized"}`, body)
		})
	})
}

func TestMatchingEndpoints(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	const message = "Need help preparing for the algebra finals next month"

	t.Run("full request lifecycle", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			student := testutil.MustCreateUser(t, storage, "student", models.RoleStudent)
			tutor := testutil.MustCreateUser(t, storage, "tutor", models.RoleTutor)
			testutil.MustFund(t, storage, student.ID, 1000)

			sendBody := fmt.Sprintf(`{"tutor_id": %q, "message": %q}`, tutor.ID, message)
			code, body := do(t, srv, http.MethodPost, "/api/matching", tokenFor(t, student), sendBody)

			require.Equalf(t, http.StatusCreated, code, "send should succeed. Resp: %s", body)
			assert.Equal(t, models.MatchRequestPending, jsonField(t, body, "status"))
			requestID, ok := jsonField(t, body, "id").(string)
			require.True(t, ok, "response should carry the request id")

			// The flat hold is taken immediately
			code, body = do(t, srv, http.MethodGet, "/api/coins/balance", tokenFor(t, student), "")
			require.Equal(t, http.StatusOK, code)
			assert.JSONEq(t, `{"balance": 700}`, body)

			// The tutor sees the pending request
			code, body = do(t, srv, http.MethodGet, "/api/matching/tutor", tokenFor(t, tutor), "")
			require.Equal(t, http.StatusOK, code)
			assert.Contains(t, body, requestID)

			code, body = do(t, srv, http.MethodPost, "/api/matching/"+requestID+"/approve", tokenFor(t, tutor), "")
			require.Equalf(t, http.StatusOK, code, "approve should succeed. Resp: %s", body)
			assert.Equal(t, models.MatchRequestApproved, jsonField(t, body, "status"))

			// Terminal states are reached once
			code, body = do(t, srv, http.MethodPost, "/api/matching/"+requestID+"/approve", tokenFor(t, tutor), "")
			require.Equal(t, http.StatusConflict, code)
			assert.JSONEq(t, `{"error": "service_error", "message": "Request is already processed"}`, body)
		})
	})

	t.Run("not enough coins", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			student := testutil.MustCreateUser(t, storage, "broke", models.RoleStudent)
			tutor := testutil.MustCreateUser(t, storage, "tutor", models.RoleTutor)

			sendBody := fmt.Sprintf(`{"tutor_id": %q, "message": %q}`, tutor.ID, message)
			code, body := do(t, srv, http.MethodPost, "/api/matching", tokenFor(t, student), sendBody)

			require.Equal(t, http.StatusPaymentRequired, code)
			assert.JSONEq(t, `{"error": "service_error", "message": "Not enough coins"}`, body)
		})
	})
}

func TestLessonEndpoints(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	bookBody := func(tutorID uuid.UUID, cost int64) string {
		return fmt.Sprintf(
			`{"tutor_id": %q, "subject": "algebra", "scheduled_at": %q, "duration_minutes": 60, "coin_cost": %d}`,
			tutorID, time.Now().Add(48*time.Hour).Format(time.RFC3339), cost,
		)
	}

	t.Run("book approve start complete", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			student := testutil.MustCreateUser(t, storage, "student", models.RoleStudent)
			tutor := testutil.MustCreateUser(t, storage, "tutor", models.RoleTutor)
			testutil.MustFund(t, storage, student.ID, 1000)

			code, body := do(t, srv, http.MethodPost, "/api/lessons", tokenFor(t, student), bookBody(tutor.ID, 1000))
			require.Equalf(t, http.StatusCreated, code, "booking should succeed. Resp: %s", body)
			assert.Equal(t, models.LessonPending, jsonField(t, body, "status"))
			assert.Equal(t, models.EscrowReserved, jsonField(t, body, "escrow_status"))
			lessonID, ok := jsonField(t, body, "id").(string)
			require.True(t, ok)

			code, body = do(t, srv, http.MethodPost, "/api/lessons/"+lessonID+"/approve", tokenFor(t, tutor), "")
			require.Equalf(t, http.StatusOK, code, "approve should succeed. Resp: %s", body)
			assert.Equal(t, models.EscrowEscrowed, jsonField(t, body, "escrow_status"))

			code, _ = do(t, srv, http.MethodPost, "/api/lessons/"+lessonID+"/start", tokenFor(t, tutor), "")
			require.Equal(t, http.StatusOK, code)

			code, body = do(t, srv, http.MethodPost, "/api/lessons/"+lessonID+"/complete", tokenFor(t, tutor),
				`{"tutor_feedback": "great progress", "student_rating": 5}`)
			require.Equalf(t, http.StatusOK, code, "complete should succeed. Resp: %s", body)
			assert.Equal(t, models.LessonCompleted, jsonField(t, body, "status"))
			assert.Equal(t, models.EscrowReleased, jsonField(t, body, "escrow_status"))

			// 15% platform fee: the tutor gets 850 of the 1000 coins
			code, body = do(t, srv, http.MethodGet, "/api/coins/balance", tokenFor(t, tutor), "")
			require.Equal(t, http.StatusOK, code)
			assert.JSONEq(t, `{"balance": 850}`, body)

			// Hold, payout and platform fee are all recorded against the lesson
			code, body = do(t, srv, http.MethodGet, "/api/lessons/"+lessonID+"/escrow", tokenFor(t, student), "")
			require.Equal(t, http.StatusOK, code)
			transactions, ok := jsonField(t, body, "transactions").([]any)
			require.True(t, ok)
			assert.Len(t, transactions, 3)
		})
	})

	t.Run("cancel refunds the student", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			student := testutil.MustCreateUser(t, storage, "student", models.RoleStudent)
			tutor := testutil.MustCreateUser(t, storage, "tutor", models.RoleTutor)
			testutil.MustFund(t, storage, student.ID, 500)

			code, body := do(t, srv, http.MethodPost, "/api/lessons", tokenFor(t, student), bookBody(tutor.ID, 500))
			require.Equal(t, http.StatusCreated, code)
			lessonID := jsonField(t, body, "id").(string)

			code, body = do(t, srv, http.MethodPost, "/api/lessons/"+lessonID+"/cancel", tokenFor(t, student),
				`{"reason": "schedule conflict"}`)
			require.Equalf(t, http.StatusOK, code, "cancel should succeed. Resp: %s", body)
			assert.Equal(t, models.EscrowRefunded, jsonField(t, body, "escrow_status"))

			code, body = do(t, srv, http.MethodGet, "/api/coins/balance", tokenFor(t, student), "")
			require.Equal(t, http.StatusOK, code)
			assert.JSONEq(t, `{"balance": 500}`, body)
		})
	})

	t.Run("escrow status is for participants only", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			student := testutil.MustCreateUser(t, storage, "student", models.RoleStudent)
			tutor := testutil.MustCreateUser(t, storage, "tutor", models.RoleTutor)
			stranger := testutil.MustCreateUser(t, storage, "stranger", models.RoleStudent)
			testutil.MustFund(t, storage, student.ID, 500)

			code, body := do(t, srv, http.MethodPost, "/api/lessons", tokenFor(t, student), bookBody(tutor.ID, 500))
			require.Equal(t, http.StatusCreated, code)
			lessonID := jsonField(t, body, "id").(string)

			code, body = do(t, srv, http.MethodGet, "/api/lessons/"+lessonID+"/escrow", tokenFor(t, stranger), "")

			require.Equal(t, http.StatusForbidden, code)
			assert.JSONEq(t, `{"error": "service_error", "message": "Operation not allowed for this user"}`, body)
		})
	})

	t.Run("unknown lesson", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			tutor := testutil.MustCreateUser(t, storage, "tutor", models.RoleTutor)

			code, body := do(t, srv, http.MethodPost, "/api/lessons/"+uuid.NewString()+"/approve", tokenFor(t, tutor), "")

			require.Equal(t, http.StatusNotFound, code)
			assert.JSONEq(t, `{"error": "service_error", "message": "Not found"}`, body)
		})
	})
}

func TestNotificationEndpoints(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("purchase produces a notification", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			student := testutil.MustCreateUser(t, storage, "buyer", models.RoleStudent)
			token := tokenFor(t, student)

			code, _ := do(t, srv, http.MethodPost, "/api/coins/purchase", token,
				`{"amount": 100, "payment_method_id": "pm_1"}`)
			require.Equal(t, http.StatusCreated, code)

			code, body := do(t, srv, http.MethodGet, "/api/notifications/unread-count", token, "")
			require.Equal(t, http.StatusOK, code)
			assert.JSONEq(t, `{"count": 1}`, body)

			code, body = do(t, srv, http.MethodGet, "/api/notifications", token, "")
			require.Equal(t, http.StatusOK, code)

			var notifications []map[string]any
			require.NoError(t, json.Unmarshal([]byte(body), &notifications))
			require.Len(t, notifications, 1)
			assert.Equal(t, models.NotificationCoinsPurchased, notifications[0]["type"])
			assert.Equal(t, false, notifications[0]["read"])
			notificationID := notifications[0]["id"].(string)

			code, body = do(t, srv, http.MethodPost, "/api/notifications/"+notificationID+"/read", token, "")
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, true, jsonField(t, body, "read"))

			code, body = do(t, srv, http.MethodGet, "/api/notifications/unread-count", token, "")
			require.Equal(t, http.StatusOK, code)
			assert.JSONEq(t, `{"count": 0}`, body)
		})
	})

	t.Run("mark all read", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			student := testutil.MustCreateUser(t, storage, "buyer", models.RoleStudent)
			token := tokenFor(t, student)

			for i := 0; i < 3; i++ {
				code, _ := do(t, srv, http.MethodPost, "/api/coins/purchase", token,
					`{"amount": 100, "payment_method_id": "pm_1"}`)
				require.Equal(t, http.StatusCreated, code)
			}

			code, body := do(t, srv, http.MethodPost, "/api/notifications/read-all", token, "")
			require.Equal(t, http.StatusOK, code)
			assert.JSONEq(t, `{"updated": 3}`, body)

			// Nothing left to update the second time
			code, body = do(t, srv, http.MethodPost, "/api/notifications/read-all", token, "")
			require.Equal(t, http.StatusOK, code)
			assert.JSONEq(t, `{"updated": 0}`, body)
		})
	})

	t.Run("cannot read someone else's notification", func(t *testing.T) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			srv, storage := newTestServer(t, tx)
			owner := testutil.MustCreateUser(t, storage, "owner", models.RoleStudent)
			other := testutil.MustCreateUser(t, storage, "other", models.RoleStudent)

			code, _ := do(t, srv, http.MethodPost, "/api/coins/purchase", tokenFor(t, owner),
				`{"amount": 100, "payment_method_id": "pm_1"}`)
			require.Equal(t, http.StatusCreated, code)

			code, body := do(t, srv, http.MethodGet, "/api/notifications", tokenFor(t, owner), "")
			require.Equal(t, http.StatusOK, code)
			var notifications []map[string]any
			require.NoError(t, json.Unmarshal([]byte(body), &notifications))
			require.Len(t, notifications, 1)
			notificationID := notifications[0]["id"].(string)

			code, body = do(t, srv, http.MethodPost, "/api/notifications/"+notificationID+"/read", tokenFor(t, other), "")

			require.Equal(t, http.StatusNotFound, code)
			assert.JSONEq(t, `{"error": "service_error", "message": "Not found"}`, body)
		})
	})
}
