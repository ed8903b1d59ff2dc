// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"log"

	"github.com/gofiber/fiber/v3"
	"gorm.io/gorm"
)

// DBTxLocalKey is the fiber locals key under which the per-request
// transaction is stored for handlers to pick up.
const DBTxLocalKey = "db_tx"

// Database returns a middleware that opens a transaction per request and
// finalizes it after the handler chain: commit when the handler succeeded,
// rollback when it returned an error or responded with a 4xx/5xx status.
// Requests that already carry a transaction pass through untouched, so the
// middleware can stack under webhook handlers that manage their own scope.
func Database(db *gorm.DB) fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Locals(DBTxLocalKey) != nil {
			return c.Next()
		}

		tx := db.Begin()
		if tx.Error != nil {
			log.Println("Failed to begin request transaction", tx.Error)
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
		}
		c.Locals(DBTxLocalKey, tx)

		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			}
		}()

		err := c.Next()

		if err != nil || c.Response().StatusCode() >= fiber.StatusBadRequest {
			tx.Rollback()
			return err
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			log.Println("Failed to commit request transaction", commitErr)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to commit transaction")
		}

		return nil
	}
}

// RequestTx returns the transaction the Database middleware opened for this
// request, or nil when the request runs outside one.
func RequestTx(c fiber.Ctx) *gorm.DB {
	if tx, ok := c.Locals(DBTxLocalKey).(*gorm.DB); ok {
		return tx
	}
	return nil
}
