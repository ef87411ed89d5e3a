package models

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// AccountScope selects which set of books an account role resolves in:
// the organization chart of accounts, or one group's sub-ledger.
type AccountScope struct {
	GroupId int // 0 = organization scope
}

func OrganizationScope() AccountScope       { return AccountScope{} }
func GroupScope(groupId int) AccountScope   { return AccountScope{GroupId: groupId} }
func (s AccountScope) IsOrganization() bool { return s.GroupId == 0 }

// ResolvedAccount is the concrete ledger identity a role resolves to.
// Ledger rows denormalize these fields at post time so history stays
// readable even if reference data is later renamed.
type ResolvedAccount struct {
	AccountName   string
	AccountCode   string
	AccountNature AccountNature
}

// organization roles and their group-scope counterparts. Roles without an
// entry only exist at organization level (income accounts, capital
// advances): group books never carry them.
var groupRoleForAccountRole = map[AccountRole]GroupAccountRole{
	AccountRoleBank:               GroupRoleBank,
	AccountRoleLoansReceivable:    GroupRoleLoansReceivable,
	AccountRoleInterestReceivable: GroupRoleInterestReceivable,
	AccountRoleChargesReceivable:  GroupRoleChargesReceivable,
}

// ResolveAccount maps (scope, role) to a concrete account on the given tx.
// Posting services must resolve through here and stop on
// ErrAccountNotConfigured; silently skipping a leg would break the
// double-entry invariant.
func ResolveAccount(tx *gorm.DB, businessId string, scope AccountScope, role AccountRole) (*ResolvedAccount, error) {
	if scope.IsOrganization() {
		var account Account
		err := tx.Where("business_id = ? AND system_role = ?", businessId, role).
			First(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: role=%s", ErrAccountNotConfigured, role)
			}
			return nil, err
		}
		return &ResolvedAccount{
			AccountName:   account.Name,
			AccountCode:   account.AccountNumber,
			AccountNature: account.Nature,
		}, nil
	}

	groupRole, ok := groupRoleForAccountRole[role]
	if !ok {
		return nil, fmt.Errorf("%w: role=%s has no group-scope account", ErrAccountNotConfigured, role)
	}
	return ResolveGroupAccount(tx, businessId, scope.GroupId, groupRole)
}

// ResolveGroupAccount maps a group-account role directly, for postings that
// are inherently group-scoped (capital transfers).
func ResolveGroupAccount(tx *gorm.DB, businessId string, groupId int, role GroupAccountRole) (*ResolvedAccount, error) {
	ga, err := GetGroupAccount(tx, businessId, groupId, role)
	if err != nil {
		return nil, err
	}
	return &ResolvedAccount{
		AccountName:   ga.AccountName,
		AccountCode:   ga.AccountCode,
		AccountNature: ga.AccountNature,
	}, nil
}
