package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kintai/internal/config"
	"kintai/internal/domain"
	"kintai/internal/models"

	"github.com/rs/zerolog"
)

// selectors collects the page hooks the session drives. The platform's
// markup is the real contract here; these are defaults, not gospel.
type selectors struct {
	loginUser     string
	loginPassword string
	loginSubmit   string
	companyPicker string
	punchButtons  map[models.ActionType]string

	correctionDate     string
	correctionClockIn  string
	correctionClockOut string
	correctionReason   string
	correctionSubmit   string

	leaveType   string
	leaveDate   string
	leaveReason string
	leaveSubmit string

	withdrawButton string
}

func defaultSelectors() selectors {
	return selectors{
		loginUser:     `input[name="employee_session_form[login]"]`,
		loginPassword: `input[name="employee_session_form[password]"]`,
		loginSubmit:   `button[type="submit"]`,
		companyPicker: `select[name="company_id"]`,
		punchButtons: map[models.ActionType]string{
			models.ActionCheckin:    `button[data-punch="clock-in"]`,
			models.ActionCheckout:   `button[data-punch="clock-out"]`,
			models.ActionBreakStart: `button[data-punch="break-begin"]`,
			models.ActionBreakEnd:   `button[data-punch="break-end"]`,
		},
		correctionDate:     `input[name="work_record[date]"]`,
		correctionClockIn:  `input[name="work_record[clock_in_at]"]`,
		correctionClockOut: `input[name="work_record[clock_out_at]"]`,
		correctionReason:   `textarea[name="work_record[note]"]`,
		correctionSubmit:   `form.work-record-form button[type="submit"]`,
		leaveType:          `select[name="leave_request[type]"]`,
		leaveDate:          `input[name="leave_request[date]"]`,
		leaveReason:        `textarea[name="leave_request[reason]"]`,
		leaveSubmit:        `form.leave-request-form button[type="submit"]`,
		withdrawButton:     `button[data-action="withdraw"]`,
	}
}

// Page-text heuristics. The platform reports login failures and form
// rejections only as rendered text, so the contract "bad credentials vs.
// transient vs. validation" rests on these patterns. Coupled to the
// platform's wording; kept as data so a wording change is a one-line fix.
var (
	loginFailedMarkers = []string{"incorrect", "invalid login", "認証に失敗", "try again"}
	validationMarkers  = []string{"invalid", "required", "入力してください", "cannot be blank"}
	successMarkers     = []string{"submitted", "accepted", "申請しました", "saved"}
)

// Session is one logged-in browser session against the HR platform.
// Construction does not touch the network; Login does.
type Session struct {
	cfg    config.AutomationConfig
	driver Driver
	sel    selectors
	logger zerolog.Logger
}

func newSession(cfg config.AutomationConfig, driver Driver, logger *zerolog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		driver: driver,
		sel:    defaultSelectors(),
		logger: logger.With().Str("component", "automation-session").Logger(),
	}
}

// Login signs in and pins the session to the configured company. Login
// failure is detected from the landed URL and the page text; the platform
// offers no typed error for it.
func (s *Session) Login(ctx context.Context) error {
	if !s.cfg.Configured() {
		return domain.ErrCredentialsNotConfigured
	}

	loginURL := s.cfg.BaseURL + "/employee_session/new"
	if err := s.driver.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}
	if err := s.driver.Fill(ctx, s.sel.loginUser, s.cfg.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := s.driver.Fill(ctx, s.sel.loginPassword, s.cfg.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := s.driver.Click(ctx, s.sel.loginSubmit); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	landed, err := s.driver.CurrentURL(ctx)
	if err != nil {
		return fmt.Errorf("read landed url: %w", err)
	}
	if strings.Contains(landed, "session") {
		// Still on the login page: credentials were rejected.
		if text, terr := s.driver.PageText(ctx); terr == nil && containsAny(strings.ToLower(text), loginFailedMarkers) {
			s.logger.Warn().Msg("platform reported bad credentials")
		}
		return domain.ErrLoginFailed
	}

	if err := s.ensureCompanyScope(ctx); err != nil {
		return err
	}

	s.logger.Info().Msg("login succeeded")
	return nil
}

// ensureCompanyScope switches tenants when the platform lands the session
// in a different company than configured.
func (s *Session) ensureCompanyScope(ctx context.Context) error {
	if s.cfg.CompanyName == "" {
		return nil
	}

	present, err := s.driver.Enabled(ctx, s.sel.companyPicker)
	if err != nil || !present {
		// No picker rendered: single-company account, nothing to scope.
		return nil
	}

	text, err := s.driver.Text(ctx, s.sel.companyPicker+" option[selected]")
	if err == nil && strings.Contains(text, s.cfg.CompanyName) {
		return nil
	}

	if err := s.driver.Fill(ctx, s.sel.companyPicker, s.cfg.CompanyName); err != nil {
		return fmt.Errorf("switch company scope: %w", err)
	}
	s.logger.Info().Str("company", s.cfg.CompanyName).Msg("switched company scope")
	return nil
}

// DetectState inspects which punch controls are interactable and maps the
// affordance set to an attendance state.
func (s *Session) DetectState(ctx context.Context) (models.AttendanceState, error) {
	if err := s.driver.Navigate(ctx, s.cfg.BaseURL+"/employee/attendance"); err != nil {
		return models.StateUnknown, fmt.Errorf("open attendance page: %w", err)
	}

	enabled := make(map[models.ActionType]bool, len(s.sel.punchButtons))
	for action, selector := range s.sel.punchButtons {
		ok, err := s.driver.Enabled(ctx, selector)
		if err != nil {
			return models.StateUnknown, fmt.Errorf("inspect %s control: %w", action, err)
		}
		enabled[action] = ok
	}

	switch {
	case enabled[models.ActionCheckin]:
		return models.StateNotCheckedIn, nil
	case enabled[models.ActionBreakEnd]:
		return models.StateOnBreak, nil
	case enabled[models.ActionCheckout] || enabled[models.ActionBreakStart]:
		return models.StateWorking, nil
	}

	// Nothing interactable after a completed day.
	return models.StateCheckedOut, nil
}

// ExecuteAction clicks one punch control, with before/after screenshots
// kept as audit artifacts.
func (s *Session) ExecuteAction(ctx context.Context, action models.ActionType) error {
	selector, ok := s.sel.punchButtons[action]
	if !ok {
		return fmt.Errorf("no control mapped for action %q", action)
	}

	if err := s.driver.Navigate(ctx, s.cfg.BaseURL+"/employee/attendance"); err != nil {
		return fmt.Errorf("open attendance page: %w", err)
	}
	if err := s.driver.WaitVisible(ctx, selector); err != nil {
		return fmt.Errorf("wait for %s control: %w", action, err)
	}

	s.captureArtifact(ctx, string(action)+"_before")

	if err := s.driver.Click(ctx, selector); err != nil {
		return fmt.Errorf("click %s: %w", action, err)
	}

	// Confirm the punch landed: the clicked control must no longer accept
	// input once the state has moved on.
	time.Sleep(500 * time.Millisecond)
	stillEnabled, err := s.driver.Enabled(ctx, selector)
	if err == nil && stillEnabled {
		s.captureArtifact(ctx, string(action)+"_unconfirmed")
		return fmt.Errorf("punch %s not confirmed by page state", action)
	}

	s.captureArtifact(ctx, string(action)+"_after")
	s.logger.Info().Str("action", string(action)).Msg("punch executed via browser")
	return nil
}

// SubmitCorrection fills the native correction form for a date. A rejected
// form is an expected outcome and comes back in the result, not as an error.
func (s *Session) SubmitCorrection(ctx context.Context, entry *models.CorrectionEntry) (*domain.SubmitResult, error) {
	formURL := fmt.Sprintf("%s/employee/work_records/%s/edit", s.cfg.BaseURL, entry.DateKey())
	if err := s.driver.Navigate(ctx, formURL); err != nil {
		return nil, fmt.Errorf("open correction form: %w", err)
	}

	if entry.ClockInAt != nil {
		if err := s.driver.Fill(ctx, s.sel.correctionClockIn, entry.ClockInAt.Format("15:04")); err != nil {
			return nil, fmt.Errorf("fill clock-in: %w", err)
		}
	}
	if entry.ClockOutAt != nil {
		if err := s.driver.Fill(ctx, s.sel.correctionClockOut, entry.ClockOutAt.Format("15:04")); err != nil {
			return nil, fmt.Errorf("fill clock-out: %w", err)
		}
	}
	if entry.Reason != "" {
		if err := s.driver.Fill(ctx, s.sel.correctionReason, entry.Reason); err != nil {
			return nil, fmt.Errorf("fill reason: %w", err)
		}
	}

	s.captureArtifact(ctx, "correction_"+entry.DateKey()+"_before")
	if err := s.driver.Click(ctx, s.sel.correctionSubmit); err != nil {
		return nil, fmt.Errorf("submit correction: %w", err)
	}

	return s.inspectSubmitOutcome(ctx, "correction_"+entry.DateKey())
}

// SubmitLeaveRequest files a leave request through its form.
func (s *Session) SubmitLeaveRequest(ctx context.Context, leaveType string, date time.Time, reason string) (*domain.SubmitResult, error) {
	if err := s.driver.Navigate(ctx, s.cfg.BaseURL+"/employee/leave_requests/new"); err != nil {
		return nil, fmt.Errorf("open leave form: %w", err)
	}

	if err := s.driver.Fill(ctx, s.sel.leaveType, leaveType); err != nil {
		return nil, fmt.Errorf("fill leave type: %w", err)
	}
	if err := s.driver.Fill(ctx, s.sel.leaveDate, date.Format("2006-01-02")); err != nil {
		return nil, fmt.Errorf("fill leave date: %w", err)
	}
	if reason != "" {
		if err := s.driver.Fill(ctx, s.sel.leaveReason, reason); err != nil {
			return nil, fmt.Errorf("fill leave reason: %w", err)
		}
	}

	if err := s.driver.Click(ctx, s.sel.leaveSubmit); err != nil {
		return nil, fmt.Errorf("submit leave request: %w", err)
	}

	return s.inspectSubmitOutcome(ctx, "leave_"+date.Format("2006-01-02"))
}

// WithdrawRequest pulls back a pending correction or leave request.
func (s *Session) WithdrawRequest(ctx context.Context, requestKind string, id int64) error {
	url := fmt.Sprintf("%s/employee/%s_requests/%d", s.cfg.BaseURL, requestKind, id)
	if err := s.driver.Navigate(ctx, url); err != nil {
		return fmt.Errorf("open request page: %w", err)
	}
	if err := s.driver.Click(ctx, s.sel.withdrawButton); err != nil {
		return fmt.Errorf("click withdraw: %w", err)
	}

	outcome, err := s.inspectSubmitOutcome(ctx, fmt.Sprintf("withdraw_%s_%d", requestKind, id))
	if err != nil {
		return err
	}
	if !outcome.Success {
		return fmt.Errorf("withdraw rejected: %s", outcome.Error)
	}
	return nil
}

// inspectSubmitOutcome classifies the page after a form submit into
// success / validation rejection.
func (s *Session) inspectSubmitOutcome(ctx context.Context, artifact string) (*domain.SubmitResult, error) {
	text, err := s.driver.PageText(ctx)
	if err != nil {
		return nil, fmt.Errorf("read result page: %w", err)
	}

	s.captureArtifact(ctx, artifact+"_after")

	lower := strings.ToLower(text)
	if containsAny(lower, successMarkers) {
		return &domain.SubmitResult{Success: true}, nil
	}
	if containsAny(lower, validationMarkers) {
		return &domain.SubmitResult{Success: false, Error: firstLine(text)}, nil
	}

	// Neither marker present: tentatively treat as success but keep the
	// artifact for manual review.
	s.logger.Warn().Str("artifact", artifact).Msg("submit outcome ambiguous, treating as success")
	return &domain.SubmitResult{Success: true}, nil
}

func (s *Session) captureArtifact(ctx context.Context, name string) {
	buf, err := s.driver.Screenshot(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("artifact", name).Msg("screenshot failed")
		return
	}
	if err := os.MkdirAll(s.cfg.ArtifactsPath, 0o755); err != nil {
		return
	}
	filename := fmt.Sprintf("%s_%s.png", time.Now().Format("20060102_150405"), name)
	if err := os.WriteFile(filepath.Join(s.cfg.ArtifactsPath, filename), buf, 0o644); err != nil {
		s.logger.Warn().Err(err).Str("artifact", name).Msg("write artifact failed")
	}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx > 0 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

var _ domain.Session = (*Session)(nil)
