package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/payflow/payflow/models"
	"github.com/payflow/payflow/utils"
)

// APIAuthMiddleware authenticates requests by merchant API credentials
// supplied in the X-Api-Key and X-Api-Secret headers and puts the merchant
// in the request context.
func APIAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Api-Key")
		apiSecret := c.GetHeader("X-Api-Secret")

		if apiKey == "" || apiSecret == "" {
			utils.LogError("Missing API credentials from %s", c.ClientIP())
			utils.Unauthorized(c, "Missing API credentials")
			c.Abort()
			return
		}

		var merchant models.Merchant
		err := db.First(&merchant, "api_key = ?", apiKey).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.LogError("Unknown API key from %s", c.ClientIP())
			utils.Unauthorized(c, "Invalid API credentials")
			c.Abort()
			return
		}
		if err != nil {
			utils.LogError("Merchant lookup failed: %v", err)
			utils.InternalServerError(c, "Authentication failed")
			c.Abort()
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(merchant.APISecretHash), []byte(apiSecret)) != nil {
			utils.LogError("Invalid API secret for key %s", apiKey)
			utils.Unauthorized(c, "Invalid API credentials")
			c.Abort()
			return
		}

		c.Set("merchant", merchant)
		c.Next()
	}
}
