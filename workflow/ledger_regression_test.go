package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"bitbucket.org/mmdatafocus/sacco_backend/workflow"
	"github.com/shopspring/decimal"
)

// Regression: the full loan lifecycle must keep every derived balance in
// agreement with the append-only ledger, and repayment allocation must
// settle charges before the policy buckets.
func TestLoanLedgerLifecycle(t *testing.T) {
	ctx := setupIntegration(t)

	member, err := models.CreateMember(ctx, &models.NewMember{Name: "Wanjiku", MemberNumber: "M-001"})
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	product, err := models.CreateLoanProduct(ctx, &models.NewLoanProduct{
		Name:             "Development Loan",
		AllocationPolicy: models.AllocationInterestFirst,
	})
	if err != nil {
		t.Fatalf("CreateLoanProduct: %v", err)
	}
	loan, err := models.CreateLoan(ctx, &models.NewLoan{
		MemberId:  member.ID,
		ProductId: product.ID,
		Principal: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}

	// Repayment against a pending loan must be rejected.
	if _, err := workflow.AllocateRepayment(ctx, &workflow.NewLoanRepayment{
		LoanId: loan.ID,
		Amount: decimal.NewFromInt(100),
	}); err == nil {
		t.Fatal("expected repayment against pending loan to fail")
	}

	if _, err := workflow.DisburseLoan(ctx, &workflow.LoanDisbursement{LoanId: loan.ID}); err != nil {
		t.Fatalf("DisburseLoan: %v", err)
	}
	if err := workflow.AccrueInterest(ctx, &workflow.LoanCharge{
		LoanId: loan.ID, Amount: decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("AccrueInterest: %v", err)
	}
	if err := workflow.AssessCharge(ctx, &workflow.LoanCharge{
		LoanId: loan.ID, Amount: decimal.NewFromInt(20),
	}); err != nil {
		t.Fatalf("AssessCharge: %v", err)
	}

	statement, err := workflow.GetLoanStatement(ctx, loan.ID)
	if err != nil {
		t.Fatalf("GetLoanStatement: %v", err)
	}
	assertDecimal(t, "outstanding principal", statement.Outstanding.Principal, "1000")
	assertDecimal(t, "outstanding interest", statement.Outstanding.Interest, "100")
	assertDecimal(t, "outstanding charges", statement.Outstanding.Charges, "20")

	// 150 must clear the 20 charge, then 100 interest, then 30 principal.
	repayment, err := workflow.AllocateRepayment(ctx, &workflow.NewLoanRepayment{
		LoanId: loan.ID,
		Amount: decimal.NewFromInt(150),
	})
	if err != nil {
		t.Fatalf("AllocateRepayment: %v", err)
	}
	assertDecimal(t, "charges paid", repayment.ChargesPaid, "20")
	assertDecimal(t, "interest paid", repayment.InterestPaid, "100")
	assertDecimal(t, "principal paid", repayment.PrincipalPaid, "30")
	assertDecimal(t, "remaining", repayment.RemainingAmount, "0")

	statement, err = workflow.GetLoanStatement(ctx, loan.ID)
	if err != nil {
		t.Fatalf("GetLoanStatement after repayment: %v", err)
	}
	assertDecimal(t, "principal after repayment", statement.Outstanding.Principal, "970")
	assertDecimal(t, "interest after repayment", statement.Outstanding.Interest, "0")
	assertDecimal(t, "charges after repayment", statement.Outstanding.Charges, "0")

	// Overpayment settles the loan and surfaces the excess.
	repayment, err = workflow.AllocateRepayment(ctx, &workflow.NewLoanRepayment{
		LoanId: loan.ID,
		Amount: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("AllocateRepayment overpayment: %v", err)
	}
	assertDecimal(t, "overpayment principal", repayment.PrincipalPaid, "970")
	assertDecimal(t, "overpayment remaining", repayment.RemainingAmount, "30")

	closed, err := models.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("GetLoan: %v", err)
	}
	if closed.Status != models.LoanStatusClosed {
		t.Fatalf("loan status = %s, want CLOSED", closed.Status)
	}

	// Balance reads are pure aggregates; two reads with no intervening
	// writes must agree.
	first, err := workflow.GetLoanStatement(ctx, loan.ID)
	if err != nil {
		t.Fatalf("GetLoanStatement: %v", err)
	}
	second, err := workflow.GetLoanStatement(ctx, loan.ID)
	if err != nil {
		t.Fatalf("GetLoanStatement: %v", err)
	}
	if !first.Outstanding.Total().Equal(second.Outstanding.Total()) {
		t.Fatalf("balance read not idempotent: %s vs %s",
			first.Outstanding.Total().String(), second.Outstanding.Total().String())
	}

	assertLedgerBalanced(t, ctx)
}

// Regression: reversal rows must restore derived balances without touching
// the original rows.
func TestReversalRestoresBalances(t *testing.T) {
	ctx := setupIntegration(t)

	member, err := models.CreateMember(ctx, &models.NewMember{Name: "Otieno", MemberNumber: "M-002"})
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	product, err := models.CreateLoanProduct(ctx, &models.NewLoanProduct{Name: "Emergency Loan"})
	if err != nil {
		t.Fatalf("CreateLoanProduct: %v", err)
	}
	loan, err := models.CreateLoan(ctx, &models.NewLoan{
		MemberId:  member.ID,
		ProductId: product.ID,
		Principal: decimal.NewFromInt(500),
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	if _, err := workflow.DisburseLoan(ctx, &workflow.LoanDisbursement{LoanId: loan.ID}); err != nil {
		t.Fatalf("DisburseLoan: %v", err)
	}
	if err := workflow.AssessCharge(ctx, &workflow.LoanCharge{
		LoanId: loan.ID, Amount: decimal.NewFromInt(50),
	}); err != nil {
		t.Fatalf("AssessCharge: %v", err)
	}

	rows, err := models.GetLedgerTransactions(ctx, models.LedgerFilter{
		LoanId:          loan.ID,
		TransactionType: models.TransactionTypeChargesAssessment,
	})
	if err != nil {
		t.Fatalf("GetLedgerTransactions: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("charge assessment rows = %d, want 2", len(rows))
	}
	countBefore := ledgerRowCount(t, ctx, loan.ID)

	debitId, creditId := rows[0].ID, rows[1].ID
	if rows[0].DrCr != models.Debit {
		debitId, creditId = creditId, debitId
	}
	if _, err := workflow.ReversePair(ctx, debitId, creditId, "charged in error"); err != nil {
		t.Fatalf("ReversePair: %v", err)
	}

	statement, err := workflow.GetLoanStatement(ctx, loan.ID)
	if err != nil {
		t.Fatalf("GetLoanStatement: %v", err)
	}
	assertDecimal(t, "charges after reversal", statement.Outstanding.Charges, "0")
	assertDecimal(t, "principal untouched", statement.Outstanding.Principal, "500")

	// The originals must survive and exactly two rows must be added.
	if got := ledgerRowCount(t, ctx, loan.ID); got != countBefore+2 {
		t.Fatalf("ledger rows = %d, want %d", got, countBefore+2)
	}

	// Reversing the same pair twice must fail.
	if _, err := workflow.ReversePair(ctx, debitId, creditId, "again"); err == nil {
		t.Fatal("expected second reversal to fail")
	}
}

// Regression: a capital advance/return round trip must keep the transfer
// records reconciled with the derived group capital-payable balance, and
// a return exceeding the group's bank balance must leave the ledger
// untouched.
func TestCapitalTransferRoundTrip(t *testing.T) {
	ctx := setupIntegration(t)

	group, err := models.CreateGroup(ctx, &models.NewGroup{Name: "Umoja Group"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	if _, err := workflow.AdvanceCapital(ctx, &workflow.NewCapitalTransfer{
		GroupId: group.ID,
		Amount:  decimal.NewFromInt(1000),
		Purpose: "Seasonal lending pool",
	}); err != nil {
		t.Fatalf("AdvanceCapital: %v", err)
	}
	if _, err := workflow.ReturnCapital(ctx, &workflow.NewCapitalTransfer{
		GroupId: group.ID,
		Amount:  decimal.NewFromInt(400),
	}); err != nil {
		t.Fatalf("ReturnCapital: %v", err)
	}

	result, err := workflow.ReconcileCapital(ctx, group.ID)
	if err != nil {
		t.Fatalf("ReconcileCapital: %v", err)
	}
	assertDecimal(t, "total advanced", result.Summary.TotalAdvanced, "1000")
	assertDecimal(t, "total returned", result.Summary.TotalReturned, "400")
	assertDecimal(t, "net outstanding", result.Summary.NetOutstanding, "600")
	assertDecimal(t, "ledger balance", result.LedgerBalance, "600")
	if !result.Reconciled {
		t.Fatal("capital transfers do not reconcile with ledger")
	}

	// The organization side must mirror the group side.
	db := config.GetDB()
	bid := businessIdFrom(ctx, t)
	advances, err := models.ResolveAccount(db, bid, models.OrganizationScope(), models.AccountRoleCapitalAdvances)
	if err != nil {
		t.Fatalf("ResolveAccount capital advances: %v", err)
	}
	advBalance, err := models.AccountBalance(db, bid, advances, models.LedgerFilter{GroupId: group.ID})
	if err != nil {
		t.Fatalf("AccountBalance capital advances: %v", err)
	}
	assertDecimal(t, "capital advances balance", advBalance, "600")

	// The group bank only holds 600; a 5000 return must fail before posting.
	beforeRows := allLedgerRowCount(t, ctx)
	_, err = workflow.ReturnCapital(ctx, &workflow.NewCapitalTransfer{
		GroupId: group.ID,
		Amount:  decimal.NewFromInt(5000),
	})
	if !errors.Is(err, workflow.ErrInsufficientFunds) {
		t.Fatalf("ReturnCapital error = %v, want ErrInsufficientFunds", err)
	}
	if got := allLedgerRowCount(t, ctx); got != beforeRows {
		t.Fatalf("failed return changed ledger: rows %d, want %d", got, beforeRows)
	}

	assertLedgerBalanced(t, ctx)
}

// Regression: savings withdrawals cannot overdraw the derived balance.
func TestSavingsWithdrawalGuard(t *testing.T) {
	ctx := setupIntegration(t)

	member, err := models.CreateMember(ctx, &models.NewMember{Name: "Achieng", MemberNumber: "M-003"})
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	product, err := models.CreateSavingsProduct(ctx, &models.NewSavingsProduct{Name: "Ordinary Savings"})
	if err != nil {
		t.Fatalf("CreateSavingsProduct: %v", err)
	}
	account, err := models.CreateSavingsAccount(ctx, &models.NewSavingsAccount{
		MemberId:  member.ID,
		ProductId: product.ID,
	})
	if err != nil {
		t.Fatalf("CreateSavingsAccount: %v", err)
	}

	if _, err := workflow.DepositSavings(ctx, &workflow.SavingsMovement{
		SavingsAccountId: account.ID,
		Amount:           decimal.NewFromInt(500),
	}); err != nil {
		t.Fatalf("DepositSavings: %v", err)
	}
	if _, err := workflow.WithdrawSavings(ctx, &workflow.SavingsMovement{
		SavingsAccountId: account.ID,
		Amount:           decimal.NewFromInt(200),
	}); err != nil {
		t.Fatalf("WithdrawSavings: %v", err)
	}

	_, err = workflow.WithdrawSavings(ctx, &workflow.SavingsMovement{
		SavingsAccountId: account.ID,
		Amount:           decimal.NewFromInt(1000),
	})
	if !errors.Is(err, workflow.ErrInsufficientFunds) {
		t.Fatalf("WithdrawSavings error = %v, want ErrInsufficientFunds", err)
	}

	balance, err := models.GetSavingsBalance(config.GetDB(), businessIdFrom(ctx, t), account.ID)
	if err != nil {
		t.Fatalf("GetSavingsBalance: %v", err)
	}
	assertDecimal(t, "savings balance", balance, "300")
}

// Regression: concurrent withdrawals against one account serialize on the
// posting lock, which is held until the withdrawal commits. The account
// holds 500, eight workers each ask for 100, and exactly five may win; a
// lock released before commit would let competitors read the stale
// balance and overdraw.
func TestConcurrentWithdrawalsSerialized(t *testing.T) {
	ctx := setupIntegration(t)

	member, err := models.CreateMember(ctx, &models.NewMember{Name: "Njeri", MemberNumber: "M-004"})
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	product, err := models.CreateSavingsProduct(ctx, &models.NewSavingsProduct{Name: "Ordinary Savings"})
	if err != nil {
		t.Fatalf("CreateSavingsProduct: %v", err)
	}
	account, err := models.CreateSavingsAccount(ctx, &models.NewSavingsAccount{
		MemberId:  member.ID,
		ProductId: product.ID,
	})
	if err != nil {
		t.Fatalf("CreateSavingsAccount: %v", err)
	}
	if _, err := workflow.DepositSavings(ctx, &workflow.SavingsMovement{
		SavingsAccountId: account.ID,
		Amount:           decimal.NewFromInt(500),
	}); err != nil {
		t.Fatalf("DepositSavings: %v", err)
	}

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = workflow.WithdrawSavings(ctx, &workflow.SavingsMovement{
				SavingsAccountId: account.ID,
				Amount:           decimal.NewFromInt(100),
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, workflow.ErrInsufficientFunds) {
			t.Fatalf("unexpected withdrawal error: %v", err)
		}
	}
	if succeeded != 5 {
		t.Fatalf("withdrawals succeeded = %d, want 5", succeeded)
	}

	balance, err := models.GetSavingsBalance(config.GetDB(), businessIdFrom(ctx, t), account.ID)
	if err != nil {
		t.Fatalf("GetSavingsBalance: %v", err)
	}
	assertDecimal(t, "savings balance after race", balance, "0")
	assertLedgerBalanced(t, ctx)
}

// Regression: concurrent repayments against one loan can never apply more
// than the outstanding total in aggregate. Five workers each pay 300
// against 1000 outstanding; the winners apply exactly 1000 between them
// and the stragglers fail against the closed loan.
func TestConcurrentRepaymentsSerialized(t *testing.T) {
	ctx := setupIntegration(t)

	member, err := models.CreateMember(ctx, &models.NewMember{Name: "Kamau", MemberNumber: "M-005"})
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	product, err := models.CreateLoanProduct(ctx, &models.NewLoanProduct{
		Name:             "Development Loan",
		AllocationPolicy: models.AllocationInterestFirst,
	})
	if err != nil {
		t.Fatalf("CreateLoanProduct: %v", err)
	}
	loan, err := models.CreateLoan(ctx, &models.NewLoan{
		MemberId:  member.ID,
		ProductId: product.ID,
		Principal: decimal.NewFromInt(1000),
	})
	if err != nil {
		t.Fatalf("CreateLoan: %v", err)
	}
	if _, err := workflow.DisburseLoan(ctx, &workflow.LoanDisbursement{LoanId: loan.ID}); err != nil {
		t.Fatalf("DisburseLoan: %v", err)
	}

	const workers = 5
	repayments := make([]*models.LoanRepayment, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repayments[i], errs[i] = workflow.AllocateRepayment(ctx, &workflow.NewLoanRepayment{
				LoanId: loan.ID,
				Amount: decimal.NewFromInt(300),
			})
		}(i)
	}
	wg.Wait()

	applied := decimal.Zero
	for i := range errs {
		if errs[i] != nil {
			// Loses the race once the loan is settled and closed.
			continue
		}
		applied = applied.Add(repayments[i].Amount.Sub(repayments[i].RemainingAmount))
	}
	assertDecimal(t, "total applied across workers", applied, "1000")

	statement, err := workflow.GetLoanStatement(ctx, loan.ID)
	if err != nil {
		t.Fatalf("GetLoanStatement: %v", err)
	}
	assertDecimal(t, "outstanding after race", statement.Outstanding.Total(), "0")

	closed, err := models.GetLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("GetLoan: %v", err)
	}
	if closed.Status != models.LoanStatusClosed {
		t.Fatalf("loan status = %s, want CLOSED", closed.Status)
	}
	assertLedgerBalanced(t, ctx)
}

// Regression: pair reversal must reject two legs from unrelated events
// even when amount, type and dr_cr all line up.
func TestReversePairRejectsMismatchedLegs(t *testing.T) {
	ctx := setupIntegration(t)

	member, err := models.CreateMember(ctx, &models.NewMember{Name: "Moraa", MemberNumber: "M-006"})
	if err != nil {
		t.Fatalf("CreateMember: %v", err)
	}
	product, err := models.CreateSavingsProduct(ctx, &models.NewSavingsProduct{Name: "Ordinary Savings"})
	if err != nil {
		t.Fatalf("CreateSavingsProduct: %v", err)
	}
	first, err := models.CreateSavingsAccount(ctx, &models.NewSavingsAccount{
		MemberId:  member.ID,
		ProductId: product.ID,
	})
	if err != nil {
		t.Fatalf("CreateSavingsAccount: %v", err)
	}
	second, err := models.CreateSavingsAccount(ctx, &models.NewSavingsAccount{
		MemberId:  member.ID,
		ProductId: product.ID,
	})
	if err != nil {
		t.Fatalf("CreateSavingsAccount: %v", err)
	}

	pairA, err := workflow.DepositSavings(ctx, &workflow.SavingsMovement{
		SavingsAccountId: first.ID,
		Amount:           decimal.NewFromInt(250),
	})
	if err != nil {
		t.Fatalf("DepositSavings: %v", err)
	}
	pairB, err := workflow.DepositSavings(ctx, &workflow.SavingsMovement{
		SavingsAccountId: second.ID,
		Amount:           decimal.NewFromInt(250),
	})
	if err != nil {
		t.Fatalf("DepositSavings: %v", err)
	}

	// Same amount, same type, opposite dr_cr, but different deposits.
	if _, err := workflow.ReversePair(ctx, pairA.Debit.ID, pairB.Credit.ID, "mixed legs"); err == nil {
		t.Fatal("expected mismatched legs to be rejected")
	}

	bid := businessIdFrom(ctx, t)
	balance, err := models.GetSavingsBalance(config.GetDB(), bid, first.ID)
	if err != nil {
		t.Fatalf("GetSavingsBalance: %v", err)
	}
	assertDecimal(t, "first account untouched", balance, "250")

	// The genuine pair still reverses.
	if _, err := workflow.ReversePair(ctx, pairA.Debit.ID, pairA.Credit.ID, "entered in error"); err != nil {
		t.Fatalf("ReversePair: %v", err)
	}
	balance, err = models.GetSavingsBalance(config.GetDB(), bid, first.ID)
	if err != nil {
		t.Fatalf("GetSavingsBalance: %v", err)
	}
	assertDecimal(t, "first account after reversal", balance, "0")
}

// --- helpers ---

func setupIntegration(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "sacco_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx = utils.SetUserNameInContext(ctx, "Test")

	biz, err := models.CreateBusiness(ctx, &models.NewBusiness{Name: "Harambee SACCO"})
	if err != nil {
		t.Fatalf("CreateBusiness: %v", err)
	}
	return utils.SetBusinessIdInContext(ctx, biz.ID.String())
}

func businessIdFrom(ctx context.Context, t *testing.T) string {
	t.Helper()
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok {
		t.Fatal("business id missing from context")
	}
	return businessId
}

func assertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	w, err := decimal.NewFromString(want)
	if err != nil {
		t.Fatalf("bad want value %q: %v", want, err)
	}
	if !got.Equal(w) {
		t.Fatalf("%s = %s, want %s", label, got.String(), want)
	}
}

func ledgerRowCount(t *testing.T, ctx context.Context, loanId int) int {
	t.Helper()
	rows, err := models.GetLedgerTransactions(ctx, models.LedgerFilter{LoanId: loanId})
	if err != nil {
		t.Fatalf("GetLedgerTransactions: %v", err)
	}
	return len(rows)
}

func allLedgerRowCount(t *testing.T, ctx context.Context) int {
	t.Helper()
	rows, err := models.GetLedgerTransactions(ctx, models.LedgerFilter{})
	if err != nil {
		t.Fatalf("GetLedgerTransactions: %v", err)
	}
	return len(rows)
}

// assertLedgerBalanced checks the double-entry invariant: for every
// transaction type, total debits equal total credits.
func assertLedgerBalanced(t *testing.T, ctx context.Context) {
	t.Helper()
	rows, err := models.GetLedgerTransactions(ctx, models.LedgerFilter{})
	if err != nil {
		t.Fatalf("GetLedgerTransactions: %v", err)
	}
	debits := map[models.LedgerTransactionType]decimal.Decimal{}
	credits := map[models.LedgerTransactionType]decimal.Decimal{}
	for _, row := range rows {
		if row.DrCr == models.Debit {
			debits[row.TransactionType] = debits[row.TransactionType].Add(row.Amount)
		} else {
			credits[row.TransactionType] = credits[row.TransactionType].Add(row.Amount)
		}
	}
	for txType, d := range debits {
		if !d.Equal(credits[txType]) {
			t.Errorf("%s unbalanced: debits=%s credits=%s", txType, d.String(), credits[txType].String())
		}
	}
	for txType, c := range credits {
		if _, ok := debits[txType]; !ok && !c.IsZero() {
			t.Errorf("%s has credits %s but no debits", txType, c.String())
		}
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sacco-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("sacco-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=sacco_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
