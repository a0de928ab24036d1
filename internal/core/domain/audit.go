package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionQuotationIssued     AuditAction = "QUOTATION_ISSUED"
	AuditActionWithdrawalSubmitted AuditAction = "WITHDRAWAL_SUBMITTED"
	AuditActionWithdrawalRejected  AuditAction = "WITHDRAWAL_REJECTED"
	AuditActionWalletFunded        AuditAction = "WALLET_FUNDED"
	AuditActionSessionOpened       AuditAction = "SESSION_OPENED"
	AuditActionSessionDismissed    AuditAction = "SESSION_DISMISSED"
	AuditActionSessionClosed       AuditAction = "SESSION_CLOSED"
	AuditActionAccountRegistered   AuditAction = "ACCOUNT_REGISTERED"
)

// AuditLog records a single audited action.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	AccountID    *uuid.UUID  `json:"account_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
