package controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/payflow/payflow/config"
	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/queue"
	"github.com/payflow/payflow/routes"
	"github.com/payflow/payflow/utils"
)

const (
	testAPIKey    = "key_test_merchant"
	testAPISecret = "secret_test_merchant"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	DB       *gorm.DB
	Queues   *queue.Manager
	Router   *gin.Engine
	Merchant models.Merchant
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	hash, err := bcrypt.GenerateFromPassword([]byte(testAPISecret), bcrypt.MinCost)
	require.NoError(t, err)

	merchant := models.Merchant{
		ID:            "merchant-" + t.Name(),
		Name:          "Test Merchant",
		Email:         t.Name() + "@example.com",
		APIKey:        testAPIKey,
		APISecretHash: string(hash),
		WebhookURL:    "http://127.0.0.1:1/webhook",
		WebhookSecret: "whsec_test",
	}
	require.NoError(t, db.Create(&merchant).Error)

	queues := queue.NewManager()
	t.Cleanup(queues.Close)

	return &testEnv{
		DB:       db,
		Queues:   queues,
		Router:   routes.SetupRouter(db, queues),
		Merchant: merchant,
	}
}

// do performs an authenticated request against the test router.
func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return e.doWithHeaders(t, method, path, body, map[string]string{
		"X-Api-Key":    testAPIKey,
		"X-Api-Secret": testAPISecret,
	})
}

func (e *testEnv) doWithHeaders(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// errorCode digs the code out of the gateway error envelope.
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeJSON(t, w)
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "response has no error envelope: %s", w.Body.String())
	code, _ := errObj["code"].(string)
	return code
}

func seedSuccessPayment(t *testing.T, env *testEnv, amount int64) models.Payment {
	t.Helper()
	payment := models.Payment{
		ID:         utils.GenerateID(utils.PaymentIDPrefix),
		MerchantID: env.Merchant.ID,
		OrderID:    "ord_seed",
		Amount:     amount,
		Currency:   "INR",
		Method:     models.PaymentMethodUPI,
		VPA:        "buyer@upi",
		Status:     models.PaymentStatusSuccess,
	}
	require.NoError(t, env.DB.Create(&payment).Error)
	return payment
}
