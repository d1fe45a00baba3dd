package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/SAP-F-2025/assessment-session-service/internal/cache"
	"github.com/SAP-F-2025/assessment-session-service/internal/models"
	"github.com/SAP-F-2025/assessment-session-service/internal/repositories"
	"github.com/SAP-F-2025/assessment-session-service/internal/session"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet = "Summary"
	answersSheet = "Answers"
)

type exportService struct {
	repo   repositories.Repository
	loader *sessionLoader
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, treeCache cache.CacheService, treeTTL time.Duration, logger *slog.Logger) ExportService {
	if treeCache == nil {
		treeCache = cache.NewNoopCache()
	}
	return &exportService{
		repo:   repo,
		loader: newSessionLoader(repo, treeCache, treeTTL, session.RealClock{}, logger),
		logger: logger,
	}
}

// ExportAttempt writes a workbook with an attempt summary sheet and one
// row per question in presentation order.
func (s *exportService) ExportAttempt(ctx context.Context, attemptID uint, userID string) ([]byte, error) {
	attempt, err := s.repo.Attempt().GetByIDWithAnswers(ctx, attemptID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}
	if attempt.UserID != userID {
		return nil, NewPermissionError(userID, attemptID, "attempt", "export", "attempt belongs to another user")
	}

	tree, err := s.loader.tree(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	if _, err := f.NewSheet(answersSheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := s.writeSummary(f, headerStyle, tree, attempt); err != nil {
		return nil, err
	}
	if err := s.writeAnswers(f, headerStyle, tree, attempt); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Attempt exported",
		"attempt_id", attemptID,
		"user_id", userID,
		"bytes", buf.Len())
	return buf.Bytes(), nil
}

func (s *exportService) writeSummary(f *excelize.File, headerStyle int, tree *models.Assessment, attempt *models.Attempt) error {
	status := "in progress"
	completedAt := ""
	if attempt.IsCompleted() {
		status = "completed"
		completedAt = attempt.CompletedAt.UTC().Format(time.RFC3339)
	}
	score := ""
	if attempt.Score != nil {
		score = fmt.Sprintf("%.2f", *attempt.Score)
	}
	flagged := make([]string, 0)
	for _, id := range attempt.Flagged() {
		flagged = append(flagged, fmt.Sprintf("%d", id))
	}

	rows := [][]interface{}{
		{"Assessment", tree.Title},
		{"Attempt", attempt.ID},
		{"Candidate", attempt.UserID},
		{"Status", status},
		{"Started At", attempt.StartedAt.UTC().Format(time.RFC3339)},
		{"Completed At", completedAt},
		{"Score (%)", score},
		{"Needs Review", attempt.NeedsReview},
		{"Expired Unanswered", strings.Join(flagged, ", ")},
	}
	for i, row := range rows {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	return f.SetColStyle(summarySheet, "A", headerStyle)
}

func (s *exportService) writeAnswers(f *excelize.File, headerStyle int, tree *models.Assessment, attempt *models.Attempt) error {
	headers := []interface{}{
		"#", "Question ID", "Type", "Required", "Question", "Answer", "Auto Submitted", "Answered At",
	}
	if err := setRow(f, answersSheet, 1, headers); err != nil {
		return err
	}
	if err := f.SetRowStyle(answersSheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("failed to style header row: %w", err)
	}

	byQuestion := make(map[uint]*models.Answer, len(attempt.Answers))
	for i := range attempt.Answers {
		byQuestion[attempt.Answers[i].QuestionID] = &attempt.Answers[i]
	}

	for i, q := range session.Flatten(tree) {
		row := []interface{}{i + 1, q.ID, string(q.Type), q.IsRequired, q.Text, "", false, ""}
		if a, ok := byQuestion[q.ID]; ok {
			row[5] = s.describeAnswer(q, a)
			row[6] = a.AutoSubmitted
			row[7] = a.AnsweredAt.UTC().Format(time.RFC3339)
		}
		if err := setRow(f, answersSheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *exportService) describeAnswer(q *models.Question, a *models.Answer) string {
	p, err := session.DecodePayload(a.Kind, a.Payload)
	if err != nil {
		s.logger.Warn("Undecodable answer in export", "answer_id", a.ID, "error", err)
		return ""
	}
	switch v := p.(type) {
	case session.ChoiceAnswer:
		for _, opt := range q.Options {
			if opt.ID == v.OptionID {
				return opt.Text
			}
		}
		return fmt.Sprintf("option %d", v.OptionID)
	case session.TextAnswer:
		return v.Text
	case session.RatingAnswer:
		return fmt.Sprintf("%d / %d", v.Value, q.RatingMax)
	case session.VideoAnswer:
		return v.URL
	}
	return ""
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}
