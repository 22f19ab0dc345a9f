package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aegisshield/chain-monitor/internal/config"
	"github.com/aegisshield/chain-monitor/internal/database"
	"github.com/aegisshield/chain-monitor/internal/metrics"
	"github.com/aegisshield/chain-monitor/internal/models"
	"github.com/aegisshield/chain-monitor/internal/realtime"
)

type fakeAlertStore struct {
	mu     sync.Mutex
	alerts map[uuid.UUID]*models.Alert
}

func newFakeAlertStore(alerts ...*models.Alert) *fakeAlertStore {
	s := &fakeAlertStore{alerts: make(map[uuid.UUID]*models.Alert)}
	for _, a := range alerts {
		s.alerts[a.ID] = a
	}
	return s
}

func (s *fakeAlertStore) List(_ context.Context, _ database.AlertFilter, _, _ int) ([]*models.Alert, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		clone := *a
		out = append(out, &clone)
	}
	return out, int64(len(out)), nil
}

func (s *fakeAlertStore) Get(_ context.Context, id uuid.UUID) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s not found", id)
	}
	clone := *a
	return &clone, nil
}

func (s *fakeAlertStore) Update(_ context.Context, id uuid.UUID, fields map[string]interface{}) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s not found", id)
	}
	if status, ok := fields["status"].(models.AlertStatus); ok {
		a.Status = status
	}
	if resolvedAt, ok := fields["resolved_at"].(*time.Time); ok {
		a.ResolvedAt = resolvedAt
	}
	a.UpdatedAt = time.Now().UTC()
	clone := *a
	return &clone, nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (s *fakeAuditStore) Create(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeAuditStore) all() []*models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.AuditLog(nil), s.entries...)
}

func newAlertAPIRouter(t *testing.T, alerts *fakeAlertStore, audit *fakeAuditStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	server := &Server{
		cfg:    &config.Config{Auth: config.AuthConfig{JWTSecret: testSecret}},
		hub:    realtime.NewHub(nil, metrics.NewCollector(prometheus.NewRegistry()), zap.NewNop()),
		logger: zap.NewNop(),
		alerts: alerts,
		audit:  audit,
	}

	router := gin.New()
	router.Use(server.requestIDMiddleware())
	api := router.Group("/api/v1")
	api.Use(server.authMiddleware())
	api.Use(server.auditMiddleware())
	api.GET("/alerts", server.listAlerts)
	api.PATCH("/alerts/:id", server.updateAlert)
	return router
}

func patchAlert(t *testing.T, router *gin.Engine, id uuid.UUID, status string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"status": status})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/alerts/"+id.String(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUpdateAlertStatusTransitions(t *testing.T) {
	openAlert := func() *models.Alert {
		return &models.Alert{
			ID:       uuid.New(),
			Title:    "Risk threshold exceeded",
			Severity: models.AlertSeverityHigh,
			Type:     models.AlertTypeRiskThreshold,
			Status:   models.AlertStatusOpen,
		}
	}

	t.Run("forward path runs to resolution", func(t *testing.T) {
		alert := openAlert()
		store := newFakeAlertStore(alert)
		router := newAlertAPIRouter(t, store, &fakeAuditStore{})

		rec := patchAlert(t, router, alert.ID, "investigating")
		require.Equal(t, http.StatusOK, rec.Code)

		rec = patchAlert(t, router, alert.ID, "resolved")
		require.Equal(t, http.StatusOK, rec.Code)

		var updated models.Alert
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
		assert.Equal(t, models.AlertStatusResolved, updated.Status)
		require.NotNil(t, updated.ResolvedAt)
		assert.WithinDuration(t, time.Now().UTC(), *updated.ResolvedAt, 5*time.Second)
	})

	t.Run("backward and terminal transitions conflict", func(t *testing.T) {
		tests := []struct {
			name string
			from models.AlertStatus
			to   string
		}{
			{"investigating back to open", models.AlertStatusInvestigating, "open"},
			{"resolved back to investigating", models.AlertStatusResolved, "investigating"},
			{"resolved to false_positive", models.AlertStatusResolved, "false_positive"},
			{"false_positive to resolved", models.AlertStatusFalsePositive, "resolved"},
			{"open to open", models.AlertStatusOpen, "open"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				alert := openAlert()
				alert.Status = tt.from
				store := newFakeAlertStore(alert)
				router := newAlertAPIRouter(t, store, &fakeAuditStore{})

				rec := patchAlert(t, router, alert.ID, tt.to)
				assert.Equal(t, http.StatusConflict, rec.Code)

				persisted, err := store.Get(context.Background(), alert.ID)
				require.NoError(t, err)
				assert.Equal(t, tt.from, persisted.Status)
			})
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		alert := openAlert()
		router := newAlertAPIRouter(t, newFakeAlertStore(alert), &fakeAuditStore{})
		rec := patchAlert(t, router, alert.ID, "escalated")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing alert is not found", func(t *testing.T) {
		router := newAlertAPIRouter(t, newFakeAlertStore(), &fakeAuditStore{})
		rec := patchAlert(t, router, uuid.New(), "investigating")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAuditMiddlewareAppendsMutatingCalls(t *testing.T) {
	alert := &models.Alert{
		ID:     uuid.New(),
		Title:  "Suspicious activity pattern",
		Status: models.AlertStatusOpen,
	}
	store := newFakeAlertStore(alert)
	audit := &fakeAuditStore{}
	router := newAlertAPIRouter(t, store, audit)

	// Reads leave no trail.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, audit.all())

	rec = patchAlert(t, router, alert.ID, "investigating")
	require.Equal(t, http.StatusOK, rec.Code)

	entries := audit.all()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, http.MethodPatch, entry.Action)
	assert.Equal(t, "/api/v1/alerts/:id", entry.Resource)
	assert.Equal(t, alert.ID.String(), entry.ResourceID)
	assert.Equal(t, "analyst", entry.Username)
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, http.StatusOK, entry.Details["status"])
	assert.NotEmpty(t, entry.Details["request_id"])
	assert.False(t, entry.Timestamp.IsZero())

	// Rejected transitions are still audited with their status code.
	rec = patchAlert(t, router, alert.ID, "open")
	require.Equal(t, http.StatusConflict, rec.Code)
	entries = audit.all()
	require.Len(t, entries, 2)
	assert.Equal(t, http.StatusConflict, entries[1].Details["status"])
}
