package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct{ err error }

func (f fakeBucket) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.err
}

func TestHealthCheckerAllUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	mock.ExpectPing()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM email_triggers`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hc := NewHealthChecker(db, rdb, fakeBucket{}, "stay-templates")
	h := NewHandlers(newFakeService())
	h.SetHealthChecker(hc)
	router := SetupRoutes(h, nil)

	rec := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "up", status.Checks["database"].Status)
	assert.Equal(t, "up", status.Checks["redis"].Status)
	assert.Equal(t, "up", status.Checks["s3"].Status)
	assert.Equal(t, "4 enabled trigger rules", status.Checks["triggers"].Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheckerNotConfigured(t *testing.T) {
	hc := NewHealthChecker(nil, nil, nil, "")
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
}

func TestHealthCheckerDatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM email_triggers`).WillReturnError(errors.New("connection refused"))

	hc := NewHealthChecker(db, nil, fakeBucket{err: errors.New("forbidden")}, "stay-templates")
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDetermineOverallStatus(t *testing.T) {
	up := ComponentCheck{Status: "up"}
	off := ComponentCheck{Status: "down", Message: notConfigured}

	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{"database": up, "redis": off}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"database": up, "triggers": {Status: "degraded", Message: "no enabled trigger rules"},
	}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"database": up, "s3": {Status: "down", Message: "HeadBucket failed"},
	}))
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down", Message: "ping failed"},
	}))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "5s", formatUptime(5e9))
	assert.Equal(t, "2m 3s", formatUptime(123e9))
	assert.Equal(t, "1d 0h 0m 0s", formatUptime(86400e9))
}
