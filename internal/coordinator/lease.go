package coordinator

import (
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/hive/internal/models"
	"gorm.io/gorm"
)

// DefaultLeaseTimeout is the duration after which a lease's heartbeat is
// considered stale and the lease can be taken over.
const DefaultLeaseTimeout = 90 * time.Second

// ErrLeaseHeld is returned when another live coordinator holds the lease.
var ErrLeaseHeld = errors.New("lease held by another coordinator")

// ErrLeaseLost is returned by RenewLease when holder no longer owns the lease.
var ErrLeaseLost = errors.New("lease no longer held")

// AcquireLease takes the coordinator lease for fleet on behalf of holder.
// A lease held by holder itself, or whose heartbeat is older than timeout,
// is taken over. Otherwise the error wraps ErrLeaseHeld.
func AcquireLease(db *gorm.DB, fleet, holder string, now time.Time, timeout time.Duration) (*models.CoordinatorLease, error) {
	if db == nil {
		return nil, fmt.Errorf("coordinator: db is required")
	}
	if holder == "" {
		return nil, fmt.Errorf("coordinator: holder is required")
	}
	if timeout <= 0 {
		timeout = DefaultLeaseTimeout
	}

	var lease models.CoordinatorLease
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing models.CoordinatorLease
		err := tx.Where("name = ?", fleet).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			lease = models.CoordinatorLease{Name: fleet, Holder: holder, AcquiredAt: now, LastHeartbeat: now}
			return tx.Create(&lease).Error
		case err != nil:
			return fmt.Errorf("check lease: %w", err)
		}

		if existing.Holder != holder && existing.LastHeartbeat.After(now.Add(-timeout)) {
			return fmt.Errorf("%w: %q (heartbeat %s)", ErrLeaseHeld, existing.Holder,
				existing.LastHeartbeat.Format(time.RFC3339))
		}
		lease = models.CoordinatorLease{Name: fleet, Holder: holder, AcquiredAt: now, LastHeartbeat: now}
		return tx.Save(&lease).Error
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator: acquire lease: %w", err)
	}
	return &lease, nil
}

// RenewLease refreshes the heartbeat of a lease holder still owns. The error
// wraps ErrLeaseLost when the row is gone or belongs to someone else; any
// other error leaves ownership unknown.
func RenewLease(db *gorm.DB, fleet, holder string, now time.Time) error {
	result := db.Model(&models.CoordinatorLease{}).
		Where("name = ? AND holder = ?", fleet, holder).
		Update("last_heartbeat", now)
	if result.Error != nil {
		return fmt.Errorf("coordinator: renew lease: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("coordinator: renew lease: %w: %s no longer holds %s", ErrLeaseLost, holder, fleet)
	}
	return nil
}

// ReleaseLease gives up the lease if holder owns it.
func ReleaseLease(db *gorm.DB, fleet, holder string) error {
	result := db.Where("name = ? AND holder = ?", fleet, holder).Delete(&models.CoordinatorLease{})
	if result.Error != nil {
		return fmt.Errorf("coordinator: release lease: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("coordinator: release lease: %s does not hold %s", holder, fleet)
	}
	return nil
}

// CurrentLease returns the lease row for fleet, or nil when none exists.
func CurrentLease(db *gorm.DB, fleet string) (*models.CoordinatorLease, error) {
	var lease models.CoordinatorLease
	err := db.Where("name = ?", fleet).First(&lease).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("coordinator: current lease: %w", err)
	}
	return &lease, nil
}
