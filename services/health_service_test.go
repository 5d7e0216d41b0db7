package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"academy_backoffice/database/dbtest"

	"github.com/stretchr/testify/assert"
)

func TestHealthReportWithoutRedis(t *testing.T) {
	db := dbtest.New(t)
	svc := NewHealthService(db, nil, HealthFlags{Environment: "test", TuitionCron: DefaultTuitionCron})

	report := svc.GetHealthReport(context.Background())
	assert.NotEqual(t, overallStatusCritical, report.Status)
	assert.Equal(t, http.StatusOK, svc.HTTPStatusForOverall(report.Status))
	assert.Len(t, report.Dependencies, 2)
	assert.Equal(t, "database", report.Dependencies[0].Name)
	assert.Equal(t, dependencyStatusUp, report.Dependencies[0].Status)
	assert.Equal(t, "test", report.Flags.Environment)
}

func TestHealthReportWithoutDatabase(t *testing.T) {
	svc := NewHealthService(nil, nil, HealthFlags{})
	report := svc.GetHealthReport(context.Background())
	assert.Equal(t, overallStatusCritical, report.Status)
	assert.Equal(t, http.StatusServiceUnavailable, svc.HTTPStatusForOverall(report.Status))
}

func TestHumanizeDuration(t *testing.T) {
	assert.Equal(t, "1d 2h 3m", humanizeDuration(26*time.Hour+3*time.Minute))
	assert.Equal(t, "0s", humanizeDuration(0))
}
