package hrapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"kintai/internal/domain"
	"kintai/internal/models"
)

// Platform clock type identifiers. The API speaks its own vocabulary for
// the four punch actions.
const (
	clockTypeIn         = "clock_in"
	clockTypeOut        = "clock_out"
	clockTypeBreakBegin = "break_begin"
	clockTypeBreakEnd   = "break_end"
)

var clockTypeByAction = map[models.ActionType]string{
	models.ActionCheckin:    clockTypeIn,
	models.ActionCheckout:   clockTypeOut,
	models.ActionBreakStart: clockTypeBreakBegin,
	models.ActionBreakEnd:   clockTypeBreakEnd,
}

var actionByClockType = map[string]models.ActionType{
	clockTypeIn:         models.ActionCheckin,
	clockTypeOut:        models.ActionCheckout,
	clockTypeBreakBegin: models.ActionBreakStart,
	clockTypeBreakEnd:   models.ActionBreakEnd,
}

func (c *Client) employeePath(suffix string) string {
	return fmt.Sprintf("/api/v1/employees/%d%s", c.cfg.EmployeeID, suffix)
}

// AvailableClockTypes asks which punches the platform would accept right
// now. The answer encodes the live attendance state.
func (c *Client) AvailableClockTypes(ctx context.Context) ([]models.ActionType, error) {
	var resp struct {
		AvailableTypes []string `json:"available_types"`
	}
	if err := c.get(ctx, c.employeePath("/time_clocks/available_types"), &resp); err != nil {
		return nil, err
	}

	var actions []models.ActionType
	for _, t := range resp.AvailableTypes {
		if action, ok := actionByClockType[t]; ok {
			actions = append(actions, action)
		}
	}
	return actions, nil
}

// PostTimeClock records one real-time punch.
func (c *Client) PostTimeClock(ctx context.Context, action models.ActionType, at time.Time) error {
	clockType, ok := clockTypeByAction[action]
	if !ok {
		return fmt.Errorf("no clock type for action %q", action)
	}

	body := map[string]any{
		"company_id": c.cfg.CompanyID,
		"type":       clockType,
		"base_date":  at.Format("2006-01-02"),
		"datetime":   at.Format("2006-01-02 15:04:05"),
	}
	return c.send(ctx, http.MethodPost, c.employeePath("/time_clocks"), body, nil)
}

// TodayPunches lists punches recorded for date.
func (c *Client) TodayPunches(ctx context.Context, date time.Time) ([]models.Punch, error) {
	day := date.Format("2006-01-02")
	var resp struct {
		TimeClocks []struct {
			Type     string `json:"type"`
			Datetime string `json:"datetime"`
		} `json:"employee_time_clocks"`
	}
	path := fmt.Sprintf("%s?from_date=%s&to_date=%s", c.employeePath("/time_clocks"), day, day)
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	var punches []models.Punch
	for _, tc := range resp.TimeClocks {
		action, ok := actionByClockType[tc.Type]
		if !ok {
			continue
		}
		at, err := time.ParseInLocation("2006-01-02 15:04:05", tc.Datetime, date.Location())
		if err != nil {
			c.logger.Warn().Str("datetime", tc.Datetime).Msg("unparseable punch timestamp")
			continue
		}
		punches = append(punches, models.Punch{Type: action, At: at})
	}
	return punches, nil
}

// UpdateWorkRecord sets the attendance record for a date in one call (the
// direct-write tier). A 403 means the feature is disabled account-wide.
func (c *Client) UpdateWorkRecord(ctx context.Context, entry *models.CorrectionEntry) error {
	body := map[string]any{"company_id": c.cfg.CompanyID}
	if entry.ClockInAt != nil {
		body["clock_in_at"] = entry.ClockInAt.Format("2006-01-02 15:04:05")
	}
	if entry.ClockOutAt != nil {
		body["clock_out_at"] = entry.ClockOutAt.Format("2006-01-02 15:04:05")
	}
	if len(entry.BreakRecords) > 0 {
		var breaks []map[string]string
		for _, br := range entry.BreakRecords {
			breaks = append(breaks, map[string]string{
				"clock_in_at":  br.ClockInAt.Format("2006-01-02 15:04:05"),
				"clock_out_at": br.ClockOutAt.Format("2006-01-02 15:04:05"),
			})
		}
		body["break_records"] = breaks
	}

	path := c.employeePath("/work_records/" + entry.DateKey())
	return c.send(ctx, http.MethodPut, path, body, nil)
}

// FindApprovalRoute discovers a usable approval route ID. Routes explicitly
// scoped to attendance are preferred; a generic system route is the
// fallback; no route at all means the approval tier cannot be used.
func (c *Client) FindApprovalRoute(ctx context.Context) (int64, error) {
	var resp struct {
		Routes []struct {
			ID    int64  `json:"id"`
			Name  string `json:"name"`
			Usage string `json:"usage"`
		} `json:"approval_flow_routes"`
	}
	if err := c.get(ctx, "/api/v1/approval_flow_routes", &resp); err != nil {
		return 0, err
	}

	var generic int64
	for _, route := range resp.Routes {
		if route.Usage == "work_time" {
			return route.ID, nil
		}
		if generic == 0 && route.Usage == "" {
			generic = route.ID
		}
	}
	if generic != 0 {
		return generic, nil
	}
	return 0, fmt.Errorf("%w: no approval route available", domain.ErrRouteUnsupported)
}

// SubmitWorkTimeApproval files the correction through the approval workflow.
func (c *Client) SubmitWorkTimeApproval(ctx context.Context, entry *models.CorrectionEntry, routeID int64) error {
	body := map[string]any{
		"company_id":             c.cfg.CompanyID,
		"approval_flow_route_id": routeID,
		"target_date":            entry.DateKey(),
	}
	if entry.ClockInAt != nil {
		body["clock_in_at"] = entry.ClockInAt.Format("2006-01-02 15:04:05")
	}
	if entry.ClockOutAt != nil {
		body["clock_out_at"] = entry.ClockOutAt.Format("2006-01-02 15:04:05")
	}
	if len(entry.BreakRecords) > 0 {
		var breaks []map[string]string
		for _, br := range entry.BreakRecords {
			breaks = append(breaks, map[string]string{
				"clock_in_at":  br.ClockInAt.Format("2006-01-02 15:04:05"),
				"clock_out_at": br.ClockOutAt.Format("2006-01-02 15:04:05"),
			})
		}
		body["break_records"] = breaks
	}

	return mapRouteRejection(c.send(ctx, http.MethodPost, "/api/v1/approval_requests/work_times", body, nil))
}

// SubmitLeaveApproval files a leave request through the approval workflow.
func (c *Client) SubmitLeaveApproval(ctx context.Context, leave *models.LeaveEntry, routeID int64) error {
	body := map[string]any{
		"company_id":             c.cfg.CompanyID,
		"approval_flow_route_id": routeID,
		"target_date":            leave.DateKey(),
		"leave_type":             leave.LeaveType,
	}
	if leave.Reason != "" {
		body["reason"] = leave.Reason
	}

	return mapRouteRejection(c.send(ctx, http.MethodPost, "/api/v1/approval_requests/leaves", body, nil))
}

// mapRouteRejection translates a route-scoped 422 into ErrRouteUnsupported.
// Routes that require department/position steps reject API submissions with
// a validation error naming the route. Platform wording, so this match is
// deliberately loose.
func mapRouteRejection(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity &&
		strings.Contains(apiErr.Body, "route") {
		return fmt.Errorf("%w: %s", domain.ErrRouteUnsupported, truncate([]byte(apiErr.Body), 200))
	}
	return err
}

var _ domain.HRClient = (*Client)(nil)
