package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/sacco_backend/config"
	"bitbucket.org/mmdatafocus/sacco_backend/models"
	"bitbucket.org/mmdatafocus/sacco_backend/utils"
	"bitbucket.org/mmdatafocus/sacco_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("sacco-backend")

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// requireBusiness pulls the tenant id off the request and stamps it into
// the request context. Every model and workflow call refuses to run
// without it.
func requireBusiness() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := strings.TrimSpace(c.GetHeader("business-id"))
		if businessId == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "business-id header is required"})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		if userName := strings.TrimSpace(c.GetHeader("user-name")); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrAccountNotConfigured):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func bindJSON[T any](c *gin.Context) (*T, bool) {
	var input T
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return nil, false
	}
	return &input, true
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func registerRoutes(r *gin.Engine) {
	// Business creation seeds the default chart of accounts; no tenant
	// header yet.
	r.POST("/api/businesses", func(c *gin.Context) {
		input, ok := bindJSON[models.NewBusiness](c)
		if !ok {
			return
		}
		business, err := models.CreateBusiness(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, business)
	})

	api := r.Group("/api", requireBusiness())

	api.GET("/business", func(c *gin.Context) {
		business, err := models.GetBusiness(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, business)
	})

	api.POST("/groups", func(c *gin.Context) {
		input, ok := bindJSON[models.NewGroup](c)
		if !ok {
			return
		}
		group, err := models.CreateGroup(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, group)
	})
	api.GET("/groups", func(c *gin.Context) {
		groups, err := models.GetGroups(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, groups)
	})
	api.GET("/groups/:id", func(c *gin.Context) {
		groupId, ok := pathId(c, "id")
		if !ok {
			return
		}
		group, err := models.GetGroup(c.Request.Context(), groupId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, group)
	})

	api.POST("/members", func(c *gin.Context) {
		input, ok := bindJSON[models.NewMember](c)
		if !ok {
			return
		}
		member, err := models.CreateMember(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, member)
	})
	api.GET("/members/:id", func(c *gin.Context) {
		memberId, ok := pathId(c, "id")
		if !ok {
			return
		}
		member, err := models.GetMember(c.Request.Context(), memberId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, member)
	})

	api.POST("/accounts", func(c *gin.Context) {
		input, ok := bindJSON[models.NewAccount](c)
		if !ok {
			return
		}
		account, err := models.CreateAccount(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	})
	api.GET("/accounts", func(c *gin.Context) {
		var name *string
		if v := strings.TrimSpace(c.Query("name")); v != "" {
			name = &v
		}
		accounts, err := models.GetAccounts(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, accounts)
	})
	api.GET("/accounts/:id", func(c *gin.Context) {
		accountId, ok := pathId(c, "id")
		if !ok {
			return
		}
		account, err := models.GetAccount(c.Request.Context(), accountId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	})
	api.GET("/system-accounts", func(c *gin.Context) {
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		roleMap, err := models.GetSystemAccounts(businessId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, roleMap)
	})

	api.GET("/ledger", func(c *gin.Context) {
		filter := models.LedgerFilter{
			AccountCode:     c.Query("account_code"),
			TransactionType: models.LedgerTransactionType(c.Query("transaction_type")),
		}
		for _, ref := range []struct {
			param string
			dest  *int
		}{
			{"loan_id", &filter.LoanId},
			{"member_id", &filter.MemberId},
			{"group_id", &filter.GroupId},
			{"savings_account_id", &filter.SavingsAccountId},
		} {
			if v := c.Query(ref.param); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + ref.param})
					return
				}
				*ref.dest = n
			}
		}
		rows, err := models.GetLedgerTransactions(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})
	api.GET("/ledger/transactions/:id", func(c *gin.Context) {
		transactionId, ok := pathId(c, "id")
		if !ok {
			return
		}
		row, err := models.GetLedgerTransaction(c.Request.Context(), transactionId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, row)
	})

	api.POST("/loan-products", func(c *gin.Context) {
		input, ok := bindJSON[models.NewLoanProduct](c)
		if !ok {
			return
		}
		product, err := models.CreateLoanProduct(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	})

	api.POST("/loans", func(c *gin.Context) {
		input, ok := bindJSON[models.NewLoan](c)
		if !ok {
			return
		}
		loan, err := models.CreateLoan(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, loan)
	})
	api.GET("/loans/:id", func(c *gin.Context) {
		loanId, ok := pathId(c, "id")
		if !ok {
			return
		}
		loan, err := models.GetLoan(c.Request.Context(), loanId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, loan)
	})
	api.POST("/loans/:id/disburse", func(c *gin.Context) {
		loanId, ok := pathId(c, "id")
		if !ok {
			return
		}
		input, ok := bindJSON[workflow.LoanDisbursement](c)
		if !ok {
			return
		}
		input.LoanId = loanId
		loan, err := workflow.DisburseLoan(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, loan)
	})
	api.POST("/loans/:id/interest", func(c *gin.Context) {
		loanId, ok := pathId(c, "id")
		if !ok {
			return
		}
		input, ok := bindJSON[workflow.LoanCharge](c)
		if !ok {
			return
		}
		input.LoanId = loanId
		if err := workflow.AccrueInterest(c.Request.Context(), input); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/loans/:id/charges", func(c *gin.Context) {
		loanId, ok := pathId(c, "id")
		if !ok {
			return
		}
		input, ok := bindJSON[workflow.LoanCharge](c)
		if !ok {
			return
		}
		input.LoanId = loanId
		if err := workflow.AssessCharge(c.Request.Context(), input); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api.POST("/loans/:id/repayments", func(c *gin.Context) {
		loanId, ok := pathId(c, "id")
		if !ok {
			return
		}
		input, ok := bindJSON[workflow.NewLoanRepayment](c)
		if !ok {
			return
		}
		input.LoanId = loanId
		repayment, err := workflow.AllocateRepayment(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, repayment)
	})
	api.GET("/loans/:id/repayments", func(c *gin.Context) {
		loanId, ok := pathId(c, "id")
		if !ok {
			return
		}
		repayments, err := models.GetLoanRepayments(c.Request.Context(), loanId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, repayments)
	})
	api.GET("/repayments/:id", func(c *gin.Context) {
		repaymentId, ok := pathId(c, "id")
		if !ok {
			return
		}
		repayment, err := models.GetLoanRepayment(c.Request.Context(), repaymentId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, repayment)
	})
	api.GET("/loans/:id/statement", func(c *gin.Context) {
		loanId, ok := pathId(c, "id")
		if !ok {
			return
		}
		statement, err := workflow.GetLoanStatement(c.Request.Context(), loanId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, statement)
	})

	api.POST("/savings-products", func(c *gin.Context) {
		input, ok := bindJSON[models.NewSavingsProduct](c)
		if !ok {
			return
		}
		product, err := models.CreateSavingsProduct(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, product)
	})
	api.POST("/savings-accounts", func(c *gin.Context) {
		input, ok := bindJSON[models.NewSavingsAccount](c)
		if !ok {
			return
		}
		account, err := models.CreateSavingsAccount(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, account)
	})
	api.GET("/savings-accounts/:id", func(c *gin.Context) {
		accountId, ok := pathId(c, "id")
		if !ok {
			return
		}
		account, err := models.GetSavingsAccount(c.Request.Context(), accountId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, account)
	})
	api.POST("/savings/deposits", func(c *gin.Context) {
		input, ok := bindJSON[workflow.SavingsMovement](c)
		if !ok {
			return
		}
		pair, err := workflow.DepositSavings(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, pair)
	})
	api.POST("/savings/withdrawals", func(c *gin.Context) {
		input, ok := bindJSON[workflow.SavingsMovement](c)
		if !ok {
			return
		}
		pair, err := workflow.WithdrawSavings(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, pair)
	})

	api.POST("/subscriptions", func(c *gin.Context) {
		input, ok := bindJSON[models.NewProductSubscription](c)
		if !ok {
			return
		}
		subscription, err := models.CreateProductSubscription(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, subscription)
	})
	api.GET("/subscriptions/:id", func(c *gin.Context) {
		subscriptionId, ok := pathId(c, "id")
		if !ok {
			return
		}
		subscription, err := models.GetProductSubscription(c.Request.Context(), subscriptionId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, subscription)
	})
	api.POST("/subscription-payments", func(c *gin.Context) {
		input, ok := bindJSON[workflow.SubscriptionPayment](c)
		if !ok {
			return
		}
		pair, err := workflow.PaySubscription(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, pair)
	})

	api.POST("/capital/advances", func(c *gin.Context) {
		input, ok := bindJSON[workflow.NewCapitalTransfer](c)
		if !ok {
			return
		}
		transfer, err := workflow.AdvanceCapital(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, transfer)
	})
	api.POST("/capital/returns", func(c *gin.Context) {
		input, ok := bindJSON[workflow.NewCapitalTransfer](c)
		if !ok {
			return
		}
		transfer, err := workflow.ReturnCapital(c.Request.Context(), input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, transfer)
	})
	api.GET("/groups/:id/capital", func(c *gin.Context) {
		groupId, ok := pathId(c, "id")
		if !ok {
			return
		}
		transfers, err := models.GetCapitalTransfers(c.Request.Context(), groupId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, transfers)
	})
	api.GET("/groups/:id/capital/summary", func(c *gin.Context) {
		groupId, ok := pathId(c, "id")
		if !ok {
			return
		}
		summary, err := models.GetCapitalTransferSummary(c.Request.Context(), groupId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
	api.GET("/groups/:id/capital/reconciliation", func(c *gin.Context) {
		groupId, ok := pathId(c, "id")
		if !ok {
			return
		}
		result, err := workflow.ReconcileCapital(c.Request.Context(), groupId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	api.POST("/ledger/reversals", func(c *gin.Context) {
		input, ok := bindJSON[struct {
			TransactionId int    `json:"transaction_id" binding:"required"`
			Reason        string `json:"reason"`
		}](c)
		if !ok {
			return
		}
		row, err := workflow.ReverseTransaction(c.Request.Context(), input.TransactionId, input.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, row)
	})
	api.POST("/ledger/pair-reversals", func(c *gin.Context) {
		input, ok := bindJSON[struct {
			DebitId  int    `json:"debit_id" binding:"required"`
			CreditId int    `json:"credit_id" binding:"required"`
			Reason   string `json:"reason"`
		}](c)
		if !ok {
			return
		}
		pair, err := workflow.ReversePair(c.Request.Context(), input.DebitId, input.CreditId, input.Reason)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, pair)
	})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	// Request spans; otelgorm picks these up for query traces.
	r.Use(func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+c.FullPath())
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/readyz" {
			c.Next()
			return
		}
		// Gate app endpoints on dependency readiness.
		if config.GetDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/readyz", func(c *gin.Context) {
		if config.GetDB() == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"database": "connecting"})
			return
		}
		status := gin.H{"database": "ok", "redis": "disabled"}
		if rdb := config.GetRedisDB(); rdb != nil {
			if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
				status["redis"] = "unreachable"
			} else {
				status["redis"] = "ok"
			}
		}
		c.JSON(http.StatusOK, status)
	})

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = utils.UniqueSlice(splitAndTrim(allowedOrigins))
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("business-id", "user-name", "x-correlation-id", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(gin.Recovery())
	registerRoutes(r)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Derived-balance reads and posting share READ COMMITTED semantics.
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<attempt)
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	log.Println("Server started successfully on port " + port)

	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}
