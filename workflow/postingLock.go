package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// Posting locks serialize ledger writes that depend on a derived balance.
// They use MySQL advisory locks (GET_LOCK), which are scoped to a
// connection, so the lock is taken on a pinned connection before the
// posting transaction starts and released on the same connection only
// after the transaction has committed or rolled back. Releasing inside
// the transaction would open a window where a competitor acquires the
// lock and reads balances that miss the still-uncommitted rows.

const postingLockTimeoutSeconds = 10

func acquirePostingLock(conn *gorm.DB, name string) error {
	var got int
	err := conn.Raw("SELECT GET_LOCK(?, ?)", name, postingLockTimeoutSeconds).Scan(&got).Error
	if err != nil {
		return fmt.Errorf("acquire posting lock %s: %w", name, err)
	}
	if got != 1 {
		return fmt.Errorf("posting lock %s busy", name)
	}
	return nil
}

func releasePostingLock(conn *gorm.DB, name string) {
	var released int
	conn.Raw("SELECT RELEASE_LOCK(?)", name).Scan(&released)
}

func withPostingLock(db *gorm.DB, name string, fn func(tx *gorm.DB) error) error {
	return db.Connection(func(conn *gorm.DB) error {
		if err := acquirePostingLock(conn, name); err != nil {
			return err
		}
		defer releasePostingLock(conn, name)
		return conn.Transaction(fn)
	})
}

func loanLockName(businessId string, loanId int) string {
	return fmt.Sprintf("loan:%s:%d", businessId, loanId)
}

func groupLockName(businessId string, groupId int) string {
	return fmt.Sprintf("capital:%s:%d", businessId, groupId)
}

func savingsLockName(businessId string, savingsAccountId int) string {
	return fmt.Sprintf("savings:%s:%d", businessId, savingsAccountId)
}

// WithLoanPostingLock runs fn in a transaction that is serialized against
// all other postings for the same loan. Outstanding balances read inside
// fn stay valid until the transaction commits.
func WithLoanPostingLock(db *gorm.DB, businessId string, loanId int, fn func(tx *gorm.DB) error) error {
	return withPostingLock(db, loanLockName(businessId, loanId), fn)
}

// WithGroupPostingLock serializes capital movements for one group.
func WithGroupPostingLock(db *gorm.DB, businessId string, groupId int, fn func(tx *gorm.DB) error) error {
	return withPostingLock(db, groupLockName(businessId, groupId), fn)
}

// WithSavingsPostingLock serializes movements against one savings account
// so the balance check and the posting are atomic.
func WithSavingsPostingLock(db *gorm.DB, businessId string, savingsAccountId int, fn func(tx *gorm.DB) error) error {
	return withPostingLock(db, savingsLockName(businessId, savingsAccountId), fn)
}
