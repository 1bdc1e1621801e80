package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/anonchat-backend/internal/models"
	"gorm.io/gorm"
)

const DefaultBanThreshold = 3

var (
	ErrInvalidReason = errors.New("invalid reason: must be toxic, nsfw, spam, scam or other")

	errInvalidContext = errors.New("reporter is not chatting with the reported user")
)

// ReportReasons are the accepted report reasons, in display order.
var ReportReasons = []string{"toxic", "nsfw", "spam", "scam", "other"}

func validReason(reason string) bool {
	for _, r := range ReportReasons {
		if r == reason {
			return true
		}
	}
	return false
}

type ModerationService struct {
	db        *gorm.DB
	registry  *UserRegistry
	threshold int
}

func NewModerationService(db *gorm.DB, registry *UserRegistry, threshold int) *ModerationService {
	if threshold <= 0 {
		threshold = DefaultBanThreshold
	}
	return &ModerationService{db: db, registry: registry, threshold: threshold}
}

// SubmitReport files a report against the reporter's current partner. Every
// report counts; when the partner's count reaches the threshold they are banned
// once, notified once, and their chat is ended.
func (s *ModerationService) SubmitReport(ctx context.Context, reporterID, reason string) (Result, error) {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if !validReason(reason) {
		return Result{}, ErrInvalidReason
	}

	var reportedID string
	var count int
	banned := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reporter models.User
		if err := tx.Where("id = ?", reporterID).First(&reporter).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errInvalidContext
			}
			return err
		}
		if reporter.Status != models.StatusChatting || reporter.PartnerID == nil {
			return errInvalidContext
		}
		reportedID = *reporter.PartnerID

		var reported models.User
		if err := forUpdate(tx).Where("id = ?", reportedID).First(&reported).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errInvalidContext
			}
			return err
		}
		if reported.Partner() != reporterID {
			return errInvalidContext
		}

		report := models.Report{
			ReporterID: reporterID,
			ReportedID: reportedID,
			Reason:     reason,
			CreatedAt:  s.registry.Now(),
		}
		if err := tx.Create(&report).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.User{}).Where("id = ?", reportedID).
			UpdateColumn("reports_received", gorm.Expr("reports_received + ?", 1)).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Select("reports_received").
			Where("id = ?", reportedID).Scan(&count).Error; err != nil {
			return err
		}

		if count >= s.threshold {
			res := tx.Model(&models.User{}).
				Where("id = ? AND is_banned = ?", reportedID, false).
				Update("is_banned", true)
			if res.Error != nil {
				return res.Error
			}
			banned = res.RowsAffected == 1
		}
		return nil
	})
	if errors.Is(err, errInvalidContext) {
		return Result{Outcome: OutcomeInvalidContext}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to submit report: %w", err)
	}

	slog.Info("report accepted", "action", "report", "user_id", reporterID, "partner_id", reportedID, "reason", reason, "reports_received", count)

	result := Result{Outcome: OutcomeReportAccepted, PartnerID: reportedID}
	if banned {
		slog.Warn("user auto-banned", "action", "auto_ban", "user_id", reportedID, "reports_received", count)
		result.Events = append(result.Events, Event{Type: EventAccountBanned, UserID: reportedID})
		result.Events = append(result.Events, s.endChat(ctx, reportedID)...)
	}
	return result, nil
}

// SetBanned is the administrative override. Unbanning happens only here.
func (s *ModerationService) SetBanned(ctx context.Context, id string, banned bool) (Result, error) {
	user, err := s.registry.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if err := s.registry.SetBanned(ctx, id, banned); err != nil {
		return Result{}, err
	}
	slog.Info("ban updated by admin", "action", "admin_ban", "user_id", id, "banned", banned)

	result := Result{Outcome: OutcomeUpdated}
	if banned && !user.IsBanned {
		result.Events = append(result.Events, Event{Type: EventAccountBanned, UserID: id})
		result.Events = append(result.Events, s.endChat(ctx, id)...)
		if _, err := s.registry.SetStatus(ctx, id, models.StatusSearching, models.StatusIdle); err != nil {
			slog.Error("failed to dequeue banned user", "user_id", id, "error", err)
		}
	}
	return result, nil
}

// endChat disconnects a freshly banned user. The ban itself is already committed,
// so a failure here is logged rather than returned.
func (s *ModerationService) endChat(ctx context.Context, id string) []Event {
	partnerID, err := s.registry.Disconnect(ctx, id)
	if err != nil {
		slog.Error("failed to disconnect banned user", "action", "auto_ban", "user_id", id, "error", err)
		return nil
	}
	if partnerID == "" {
		return nil
	}
	return []Event{disconnectEvent(partnerID)}
}

func (s *ModerationService) ListReports(ctx context.Context, reportedID string, limit, offset int) ([]models.Report, int64, error) {
	var reports []models.Report
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Report{})
	if reportedID != "" {
		query = query.Where("reported_id = ?", reportedID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&reports).Error; err != nil {
		return nil, 0, err
	}
	return reports, total, nil
}
