package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// Alert types and severities
const (
	AlertExpiryWarning = "expiry_warning"
	AlertExpired       = "expired"

	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// ExpiryAlert flags a batch that is expiring or has expired with stock on hand
type ExpiryAlert struct {
	ID             string     `db:"id" json:"id"`
	AlertType      string     `db:"alert_type" json:"alert_type"`
	Severity       string     `db:"severity" json:"severity"`
	BatchID        string     `db:"batch_id" json:"batch_id"`
	ProductID      string     `db:"product_id" json:"product_id"`
	WarehouseID    string     `db:"warehouse_id" json:"warehouse_id"`
	LotNumber      string     `db:"lot_number" json:"lot_number"`
	Message        string     `db:"message" json:"message"`
	DaysRemaining  int        `db:"days_remaining" json:"days_remaining"`
	Quantity       int        `db:"quantity" json:"quantity"`
	IsAcknowledged bool       `db:"is_acknowledged" json:"is_acknowledged"`
	AcknowledgedBy *string    `db:"acknowledged_by" json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// AlertFilter narrows List
type AlertFilter struct {
	Acknowledged *bool
	AlertType    string
	WarehouseID  string
	Page         int
	PerPage      int
}

// AlertRepository handles alert persistence
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create creates a new alert
func (r *AlertRepository) Create(ctx context.Context, alert *ExpiryAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	query := `
		INSERT INTO expiry_alerts (
			id, alert_type, severity, batch_id, product_id, warehouse_id, lot_number,
			message, days_remaining, quantity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	return r.db.QueryRowxContext(ctx, query,
		alert.ID, alert.AlertType, alert.Severity, alert.BatchID, alert.ProductID,
		alert.WarehouseID, alert.LotNumber, alert.Message, alert.DaysRemaining, alert.Quantity,
	).Scan(&alert.CreatedAt)
}

// GetByID gets an alert by ID
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*ExpiryAlert, error) {
	var alert ExpiryAlert
	query := `SELECT * FROM expiry_alerts WHERE id = $1`
	if err := r.db.GetContext(ctx, &alert, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("alert")
		}
		return nil, err
	}
	return &alert, nil
}

// ExistsOpen reports whether an unacknowledged alert of the type exists for the batch
func (r *AlertRepository) ExistsOpen(ctx context.Context, alertType, batchID string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS(
			SELECT 1 FROM expiry_alerts
			WHERE alert_type = $1 AND batch_id = $2 AND is_acknowledged = false
		)
	`
	if err := r.db.GetContext(ctx, &exists, query, alertType, batchID); err != nil {
		return false, err
	}
	return exists, nil
}

// List lists alerts with filtering, critical first
func (r *AlertRepository) List(ctx context.Context, filter AlertFilter) ([]ExpiryAlert, int64, error) {
	var total int64
	args := []interface{}{}
	where := ` WHERE 1=1`

	if filter.Acknowledged != nil {
		args = append(args, *filter.Acknowledged)
		where += fmt.Sprintf(` AND is_acknowledged = $%d`, len(args))
	}
	if filter.AlertType != "" {
		args = append(args, filter.AlertType)
		where += fmt.Sprintf(` AND alert_type = $%d`, len(args))
	}
	if filter.WarehouseID != "" {
		args = append(args, filter.WarehouseID)
		where += fmt.Sprintf(` AND warehouse_id = $%d`, len(args))
	}

	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM expiry_alerts`+where, args...); err != nil {
		return nil, 0, err
	}

	page, perPage := normalizePage(filter.Page, filter.PerPage)
	query := `SELECT * FROM expiry_alerts` + where +
		` ORDER BY CASE severity WHEN 'critical' THEN 0 WHEN 'warning' THEN 1 ELSE 2 END, created_at DESC` +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	alerts := []ExpiryAlert{}
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, 0, err
	}

	return alerts, total, nil
}

// Acknowledge acknowledges an alert
func (r *AlertRepository) Acknowledge(ctx context.Context, id, userID string) error {
	query := `
		UPDATE expiry_alerts
		SET is_acknowledged = true, acknowledged_by = $2, acknowledged_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errors.NotFound("alert")
	}

	return nil
}

// DeleteOld deletes acknowledged alerts older than the retention window
func (r *AlertRepository) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `DELETE FROM expiry_alerts WHERE is_acknowledged = true AND acknowledged_at < $1`
	result, err := r.db.ExecContext(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	return page, perPage
}
