package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"academy_backoffice/controllers"
	"academy_backoffice/database/dbtest"
	"academy_backoffice/models"
	"academy_backoffice/services"
	"academy_backoffice/services/gateways"
	"academy_backoffice/services/gateways/click"
	"academy_backoffice/services/gateways/payme"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	clickServiceID = "100"
	clickSecret    = "click-secret"
	paymeKey       = "payme-key"
)

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := dbtest.New(t)

	studentService := services.NewStudentService(db)
	enrollmentService := services.NewEnrollmentService(db)
	paymentService := services.NewPaymentService(db, nil, "%s %s")
	ledgerService := services.NewLedgerService(db)
	reportService := services.NewReportService(db)
	orders := gateways.NewStudentOrders(db, paymentService)
	clickService := click.NewService(click.Config{ServiceIDs: []string{clickServiceID}, SecretKey: clickSecret}, db, orders)
	paymeService := payme.NewService(payme.Config{MerchantKey: paymeKey, MinAmount: 1, MaxAmount: 10000000}, db, orders, orders)
	healthService := services.NewHealthService(db, nil, services.HealthFlags{Environment: "test"})

	app := fiber.New()
	SetupRoutes(app, Controllers{
		Health:   controllers.NewHealthController(healthService),
		Click:    controllers.NewClickController(clickService),
		Payme:    controllers.NewPaymeController(paymeService),
		Payments: controllers.NewPaymentController(paymentService),
		Ledger:   controllers.NewLedgerController(ledgerService),
		Reports:  controllers.NewReportController(reportService),
		Groups:   controllers.NewGroupController(enrollmentService),
		Students: controllers.NewStudentController(studentService, enrollmentService),
	})
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func createStudent(t *testing.T, app *fiber.App, name string) (uint, string) {
	t.Helper()
	status, body := doJSON(t, app, "POST", "/api/students", map[string]interface{}{
		"full_name":    name,
		"phone_number": "998901234567",
	})
	require.Equal(t, http.StatusCreated, status)
	student := body["student"].(map[string]interface{})
	return uint(student["id"].(float64)), fmt.Sprintf("%.0f", student["account_number"].(float64))
}

func balanceOf(t *testing.T, db *gorm.DB, id uint) decimal.Decimal {
	t.Helper()
	return dbtest.Balance(t, db, id)
}

func TestHealthRoute(t *testing.T) {
	app, _ := newTestApp(t)
	status, body := doJSON(t, app, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Academy Back Office API", body["service"])
}

func TestPaymentLifecycleOverHTTP(t *testing.T) {
	app, db := newTestApp(t)
	studentID, _ := createStudent(t, app, "Aziza Karimova")

	status, body := doJSON(t, app, "POST", "/api/payments", map[string]interface{}{
		"payment_type":       "INCOME",
		"payment_method":     "cash",
		"payment_model_type": "STUDENT",
		"amount":             "50",
		"payment_date":       "2024-03-01",
		"student_id":         studentID,
	})
	require.Equal(t, http.StatusCreated, status, body)
	payment := body["payment"].(map[string]interface{})
	assert.Equal(t, "50.00", payment["amount"])
	assert.Equal(t, "50.00", payment["student_balance_after"])
	paymentID := uint(payment["id"].(float64))

	status, body = doJSON(t, app, "GET", "/api/cash", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["cash"], 1)

	status, body = doJSON(t, app, "GET", "/api/payments/summary?date_from=2024-03-01&date_to=2024-03-01", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["count"])

	status, _ = doJSON(t, app, "PATCH", fmt.Sprintf("/api/payments/%d/mark", paymentID), map[string]bool{"marked_for_delete": true})
	assert.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, app, "DELETE", fmt.Sprintf("/api/payments/%d", paymentID), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, balanceOf(t, db, studentID).IsZero())
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodCash).IsZero())

	status, _ = doJSON(t, app, "DELETE", fmt.Sprintf("/api/payments/%d", paymentID), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPaymentValidationOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)
	studentID, _ := createStudent(t, app, "Aziza Karimova")

	status, body := doJSON(t, app, "POST", "/api/payments", map[string]interface{}{
		"payment_type":       "REFUND",
		"payment_method":     "CASH",
		"payment_model_type": "STUDENT",
		"amount":             "10",
		"student_id":         studentID,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", body["error"])

	status, _ = doJSON(t, app, "POST", "/api/payments", map[string]interface{}{
		"payment_type":       "INCOME",
		"payment_method":     "CASH",
		"payment_model_type": "STUDENT",
		"amount":             "-10",
		"student_id":         studentID,
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, "POST", "/api/payments", map[string]interface{}{
		"payment_type":       "INCOME",
		"payment_method":     "CASH",
		"payment_model_type": "STUDENT",
		"amount":             "10",
		"student_id":         999,
	})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, app, "DELETE", "/api/payments/abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGroupEnrollmentAndReportOverHTTP(t *testing.T) {
	app, db := newTestApp(t)
	studentID, _ := createStudent(t, app, "Aziza Karimova")

	group := models.StudyGroup{
		Name:       "1-A",
		StartDate:  services.MonthStart(services.DateOnly(time.Now().UTC())),
		EndDate:    services.MonthStart(services.DateOnly(time.Now().UTC())).AddDate(0, 6, 0),
		Price:      decimal.NewFromInt(100),
		Department: models.DepartmentSchool,
	}
	require.NoError(t, db.Create(&group).Error)

	status, _ := doJSON(t, app, "POST", fmt.Sprintf("/api/groups/%d/students", group.ID), map[string]interface{}{
		"student_ids": []uint{studentID},
	})
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, balanceOf(t, db, studentID).Equal(decimal.NewFromInt(-100)))

	status, _ = doJSON(t, app, "POST", "/api/bonuses", map[string]interface{}{
		"student_id": studentID,
		"amount":     "30",
		"comment":    "olympiad",
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := doJSON(t, app, "POST", "/api/adjustments", map[string]interface{}{
		"student_id":  studentID,
		"new_balance": "0",
	})
	assert.Equal(t, http.StatusBadRequest, status, "comment is required")
	assert.Equal(t, "Validation failed", body["error"])

	status, body = doJSON(t, app, "GET", fmt.Sprintf("/api/students/%d/balance-report", studentID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(2), body["total"])

	status, body = doJSON(t, app, "GET", fmt.Sprintf("/api/students/%d/balance-check", studentID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["consistent"])

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/students/%d/balance-report/export", studentID), nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "balance_report_")

	status, _ = doJSON(t, app, "DELETE", fmt.Sprintf("/api/groups/%d/students", group.ID), map[string]interface{}{
		"student_ids":    []uint{studentID},
		"remove_charges": true,
	})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, balanceOf(t, db, studentID).Equal(decimal.NewFromInt(30)))
}

func TestClickCallbackOverHTTP(t *testing.T) {
	app, db := newTestApp(t)
	studentID, account := createStudent(t, app, "Aziza Karimova")

	post := func(r click.Request) click.Response {
		r.ServiceID = clickServiceID
		r.SignTime = "2024-03-01 10:00:00"
		r.SignString = click.Sign(r, clickServiceID, clickSecret)
		form := url.Values{}
		form.Set("click_trans_id", r.ClickTransID)
		form.Set("service_id", r.ServiceID)
		form.Set("merchant_trans_id", r.MerchantTransID)
		form.Set("merchant_prepare_id", r.MerchantPrepareID)
		form.Set("amount", r.Amount)
		form.Set("action", r.Action)
		form.Set("error", r.Error)
		form.Set("sign_time", r.SignTime)
		form.Set("sign_string", r.SignString)
		req := httptest.NewRequest("POST", "/api/click/merchant", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var out click.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	prepared := post(click.Request{ClickTransID: "9001", MerchantTransID: account, Amount: "2500", Action: models.ClickActionPrepare})
	require.Equal(t, click.CodeSuccess, prepared.Error, prepared.ErrorNote)
	require.NotNil(t, prepared.MerchantPrepareID)

	completed := post(click.Request{
		ClickTransID:      "9001",
		MerchantTransID:   account,
		MerchantPrepareID: fmt.Sprint(*prepared.MerchantPrepareID),
		Amount:            "2500",
		Action:            models.ClickActionComplete,
		Error:             "0",
	})
	require.Equal(t, click.CodeSuccess, completed.Error, completed.ErrorNote)
	assert.True(t, balanceOf(t, db, studentID).Equal(decimal.NewFromInt(2500)))

	// missing sign_string fails validation before reaching the service
	req := httptest.NewRequest("POST", "/api/click/merchant", strings.NewReader("click_trans_id=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var out click.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, click.CodeBadRequest, out.Error)
}

func TestPaymeCallbackOverHTTP(t *testing.T) {
	app, _ := newTestApp(t)
	_, account := createStudent(t, app, "Aziza Karimova")

	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"CheckPerformTransaction","params":{"amount":100000,"account":{"account_number":"%s"}}}`, account)
	req := httptest.NewRequest("POST", "/api/payme/merchant", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth("Paycom", paymeKey)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Result struct {
			Allow bool `json:"allow"`
		} `json:"result"`
		Error *payme.Error `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Nil(t, out.Error)
	assert.True(t, out.Result.Allow)
}

func TestImportOverHTTP(t *testing.T) {
	app, db := newTestApp(t)
	studentID, account := createStudent(t, app, "Aziza Karimova")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "bank.csv")
	require.NoError(t, err)
	_, err = fmt.Fprintf(part, "Account Number,Amount,Payment Method\n%s,700,CARD\n", account)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/payments/import", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result services.ImportResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.Inserted)
	assert.True(t, balanceOf(t, db, studentID).Equal(decimal.NewFromInt(700)))
	assert.True(t, dbtest.CashAmount(t, db, models.PaymentMethodCard).Equal(decimal.NewFromInt(700)))
}
