package hrapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"kintai/internal/config"
	"kintai/internal/domain"
	"kintai/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer serves the OAuth token endpoint plus one API handler.
func testServer(t *testing.T, apiHandler http.HandlerFunc) (*Client, *httptest.Server, *int64) {
	t.Helper()
	var tokenRequests int64

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&tokenRequests, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "test-access-token",
			"refresh_token": "rotated-refresh-token",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/", apiHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	logger := zerolog.New(io.Discard)
	client := NewClient(config.HRConfig{
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/oauth/token",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "seed-refresh-token",
		CompanyID:    100,
		EmployeeID:   200,
	}, &logger)
	return client, server, &tokenRequests
}

func TestEnsureValidToken(t *testing.T) {
	ctx := context.Background()

	t.Run("RefreshesOnce", func(t *testing.T) {
		client, _, tokenRequests := testServer(t, func(w http.ResponseWriter, r *http.Request) {})

		token, err := client.EnsureValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "test-access-token", token)

		// Cached until near expiry.
		_, err = client.EnsureValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), atomic.LoadInt64(tokenRequests))
	})

	t.Run("MissingAppCredentials", func(t *testing.T) {
		logger := zerolog.New(io.Discard)
		client := NewClient(config.HRConfig{RefreshToken: "x"}, &logger)
		_, err := client.EnsureValidToken(ctx)
		assert.ErrorIs(t, err, domain.ErrAppCredentialsMissing)
	})

	t.Run("MissingRefreshToken", func(t *testing.T) {
		logger := zerolog.New(io.Discard)
		client := NewClient(config.HRConfig{ClientID: "a", ClientSecret: "b"}, &logger)
		_, err := client.EnsureValidToken(ctx)
		assert.ErrorIs(t, err, domain.ErrNoRefreshToken)
	})
}

func TestRequestErrorMapping(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "Unauthorized",
			status: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrAuthExpired)
			},
		},
		{
			name:   "Forbidden",
			status: http.StatusForbidden,
			body:   `{"message":"feature disabled"}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrPermissionDenied)
				assert.Contains(t, err.Error(), "feature disabled")
			},
		},
		{
			name:   "RateLimited",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrRateLimited)
			},
		},
		{
			name:   "ServerError",
			status: http.StatusInternalServerError,
			body:   "boom",
			check: func(t *testing.T, err error) {
				assert.Equal(t, http.StatusInternalServerError, ErrorStatus(err))
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.Request(ctx, http.MethodGet, "/api/v1/anything", nil)
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestRequestSendsBearerToken(t *testing.T) {
	var gotAuth string
	client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.Request(context.Background(), http.MethodGet, "/api/v1/anything", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-access-token", gotAuth)
}

func TestAvailableClockTypes(t *testing.T) {
	client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/employees/200/time_clocks/available_types", r.URL.Path)
		_, _ = w.Write([]byte(`{"available_types":["break_end","clock_out","unknown_type"]}`))
	})

	actions, err := client.AvailableClockTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.ActionType{models.ActionBreakEnd, models.ActionCheckout}, actions)
}

func TestPostTimeClock(t *testing.T) {
	var got map[string]any
	client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/employees/200/time_clocks", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{}`))
	})

	at := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, client.PostTimeClock(context.Background(), models.ActionCheckin, at))
	assert.Equal(t, "clock_in", got["type"])
	assert.Equal(t, "2026-09-01", got["base_date"])
	assert.Equal(t, "2026-09-01 09:00:00", got["datetime"])
	assert.Equal(t, float64(100), got["company_id"])
}

func TestTodayPunches(t *testing.T) {
	client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2026-09-01", r.URL.Query().Get("from_date"))
		assert.Equal(t, "2026-09-01", r.URL.Query().Get("to_date"))
		_, _ = w.Write([]byte(`{"employee_time_clocks":[
			{"type":"clock_in","datetime":"2026-09-01 09:01:00"},
			{"type":"break_begin","datetime":"2026-09-01 12:00:00"},
			{"type":"mystery","datetime":"2026-09-01 12:30:00"},
			{"type":"clock_out","datetime":"not a timestamp"}
		]}`))
	})

	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	punches, err := client.TodayPunches(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, punches, 2)
	assert.Equal(t, models.ActionCheckin, punches[0].Type)
	assert.Equal(t, models.ActionBreakStart, punches[1].Type)
	assert.Equal(t, 9, punches[0].At.Hour())
}

func TestFindApprovalRoute(t *testing.T) {
	t.Run("PrefersWorkTimeRoute", func(t *testing.T) {
		client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"approval_flow_routes":[
				{"id":1,"name":"generic","usage":""},
				{"id":2,"name":"attendance","usage":"work_time"}
			]}`))
		})
		id, err := client.FindApprovalRoute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), id)
	})

	t.Run("FallsBackToGeneric", func(t *testing.T) {
		client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"approval_flow_routes":[
				{"id":1,"name":"generic","usage":""},
				{"id":3,"name":"expenses","usage":"expense"}
			]}`))
		})
		id, err := client.FindApprovalRoute(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)
	})

	t.Run("NoRoutes", func(t *testing.T) {
		client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"approval_flow_routes":[]}`))
		})
		_, err := client.FindApprovalRoute(context.Background())
		assert.ErrorIs(t, err, domain.ErrRouteUnsupported)
	})
}

func TestSubmitWorkTimeApprovalRouteRejection(t *testing.T) {
	client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"the approval route requires department steps"}`))
	})

	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	in := date.Add(9 * time.Hour)
	entry := &models.CorrectionEntry{Date: date, ClockInAt: &in}

	err := client.SubmitWorkTimeApproval(context.Background(), entry, 5)
	assert.ErrorIs(t, err, domain.ErrRouteUnsupported)
}

func TestSubmitWorkTimeApprovalOtherValidationError(t *testing.T) {
	client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"clock_out_at must be after clock_in_at"}`))
	})

	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	entry := &models.CorrectionEntry{Date: date}

	err := client.SubmitWorkTimeApproval(context.Background(), entry, 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRouteUnsupported)
	assert.Equal(t, http.StatusUnprocessableEntity, ErrorStatus(err))
}

func TestSubmitLeaveApproval(t *testing.T) {
	leave := &models.LeaveEntry{
		Date:      time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		LeaveType: "paid",
		Reason:    "vacation",
	}

	t.Run("SendsLeaveFields", func(t *testing.T) {
		var gotPath string
		var gotBody map[string]any
		client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusCreated)
		})

		require.NoError(t, client.SubmitLeaveApproval(context.Background(), leave, 5))
		assert.Equal(t, "/api/v1/approval_requests/leaves", gotPath)
		assert.Equal(t, "2026-09-10", gotBody["target_date"])
		assert.Equal(t, "paid", gotBody["leave_type"])
		assert.Equal(t, "vacation", gotBody["reason"])
		assert.Equal(t, float64(5), gotBody["approval_flow_route_id"])
	})

	t.Run("RouteRejection", func(t *testing.T) {
		client, _, _ := testServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"the approval route requires department steps"}`))
		})

		err := client.SubmitLeaveApproval(context.Background(), leave, 5)
		assert.ErrorIs(t, err, domain.ErrRouteUnsupported)
	})
}
