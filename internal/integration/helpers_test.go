package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/stretchr/testify/require"
)

var keysToIgnore = map[string]struct{}{
	"timestamp":   {},
	"requestId":   {},
	"paymentId":   {},
	"paymentDate": {},
	"settledAt":   {},
}

func prepareRequest(
	method, path string,
	body io.Reader,
	headers map[string]string,
	cookies []http.Cookie) (*http.Request, error) {

	req := httptest.NewRequest(method, path, body)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	for _, cookie := range cookies {
		req.AddCookie(&cookie)
	}

	return req, nil
}

func compareResponse(t testing.TB, body io.Reader, expectedResponse string) {
	var actual map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&actual))

	cleanMap(actual)

	var expected map[string]any
	require.NoError(t, json.Unmarshal([]byte(expectedResponse), &expected))

	// ignore indetermistic fields while comparing
	opts := cmpopts.IgnoreMapEntries(func(k string, _ any) bool {
		_, ok := keysToIgnore[k]
		return ok
	})

	if diff := cmp.Diff(expected, actual, opts); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func cleanMap(m map[string]any) {
	for k := range m {
		if _, ok := keysToIgnore[k]; ok {
			delete(m, k)
			continue
		}
		if nested, ok := m[k].(map[string]any); ok {
			cleanMap(nested)
		}
	}
}

func executeSQLFile(t testing.TB, db *pgxpool.Pool, path string) {
	query, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = db.Exec(context.Background(), string(query))
	require.NoError(t, err)
}

func truncateAll(t testing.TB, db *pgxpool.Pool) {
	_, err := db.Exec(context.Background(), "TRUNCATE payments, bookings, users RESTART IDENTITY CASCADE")
	require.NoError(t, err)
}

func resetState(t testing.TB, app *TestApp) {
	truncateAll(t, app.DB)
	executeSQLFile(t, app.DB, "testdata/users_up.sql")
	executeSQLFile(t, app.DB, "testdata/bookings_up.sql")

	// sessions live in the same redis, so only payment keys are cleared
	keys := []string{"payment_verification_lock:" + TestTransactionId}
	for _, method := range domain.PaymentMethods {
		keys = append(keys, fmt.Sprintf("payment_method_availability:%s", method))
	}
	require.NoError(t, app.RedisClient.Del(context.Background(), keys...).Err())

	app.Mailer.Reset()
	app.MobileMoney.ExpectedCalls = nil
	app.MobileMoney.Calls = nil
}

func insertPendingPayment(t testing.TB, db *pgxpool.Pool, transactionId, token string, method string, bookingId int) {
	query := `INSERT INTO payments (id, booking_id, student_id, amount, currency, payment_method,
			transaction_id, verification_token, status)
		VALUES (gen_random_uuid(), $1, $2, ` + TestBookingTotal + `, 'GHS', $3, $4, $5, 'pending')`

	_, err := db.Exec(context.Background(), query, bookingId, TestStudentId, method, transactionId, token)
	require.NoError(t, err)
}

func paymentStatus(t testing.TB, db *pgxpool.Pool, transactionId string) string {
	var status string
	err := db.QueryRow(context.Background(),
		"SELECT status FROM payments WHERE transaction_id = $1", transactionId).Scan(&status)
	require.NoError(t, err)

	return status
}

func bookingStatus(t testing.TB, db *pgxpool.Pool, bookingId int) string {
	var status string
	err := db.QueryRow(context.Background(),
		"SELECT status FROM bookings WHERE id = $1", bookingId).Scan(&status)
	require.NoError(t, err)

	return status
}
