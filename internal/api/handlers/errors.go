package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"example.com/eventreg/internal/repositories"
	"example.com/eventreg/internal/services"
	"example.com/eventreg/internal/settlement"
)

// writeError maps service errors onto HTTP statuses: validation failures are
// 400, missing records 404 and state-machine conflicts 409.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, repositories.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, settlement.ErrConflict):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
