package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/cashback/internal/clock"
	"github.com/smallbiznis/cashback/pkg/db"
	"gorm.io/gorm"
)

// JobLease is the row backing a database lease.
type JobLease struct {
	JobName    string    `gorm:"primaryKey;type:text" json:"job_name"`
	Holder     string    `gorm:"type:text;not null" json:"holder"`
	AcquiredAt time.Time `gorm:"not null" json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"not null;index" json:"expires_at"`
}

func (JobLease) TableName() string { return "job_leases" }

// DBLocker keeps one row per job in job_leases. An expired row is taken
// over with a conditional update; a missing row is inserted and the primary
// key rejects a concurrent insert.
type DBLocker struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewDBLocker(conn *gorm.DB, clk clock.Clock) *DBLocker {
	return &DBLocker{db: conn, clock: clk}
}

func (l *DBLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	if l == nil || l.db == nil {
		return nil, ErrNotConfigured
	}
	if err := validate(name, ttl); err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	token := uuid.NewString()
	expiresAt := now.Add(ttl)

	res := l.db.WithContext(ctx).Exec(
		`UPDATE job_leases SET holder = ?, acquired_at = ?, expires_at = ?
		 WHERE job_name = ? AND expires_at <= ?`,
		token, now, expiresAt, name, now,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		err := l.db.WithContext(ctx).Exec(
			`INSERT INTO job_leases (job_name, holder, acquired_at, expires_at) VALUES (?, ?, ?, ?)`,
			name, token, now, expiresAt,
		).Error
		if db.IsDuplicateKeyErr(err) {
			return nil, ErrLeaseHeld
		}
		if err != nil {
			return nil, err
		}
	}

	return &heldLease{
		name:  name,
		token: token,
		release: func(ctx context.Context) error {
			return l.db.WithContext(ctx).Exec(
				`DELETE FROM job_leases WHERE job_name = ? AND holder = ?`,
				name, token,
			).Error
		},
	}, nil
}
