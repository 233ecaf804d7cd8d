package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-enrollment-api/internal/middleware"
	"github.com/noah-isme/sma-enrollment-api/internal/models"
	appErrors "github.com/noah-isme/sma-enrollment-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.IdentityClaims {
	claims, ok := middleware.CurrentIdentity(c)
	if !ok {
		return nil
	}
	return claims
}

func idParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid "+name)
	}
	return id, nil
}

func kindParam(c *gin.Context) (models.PersonKind, error) {
	kind := models.PersonKind(strings.ToLower(c.Param("kind")))
	if !kind.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "kind must be student or teacher")
	}
	return kind, nil
}

// kindAndID reads the :kind and :id path parameters shared by enrollment routes.
func kindAndID(c *gin.Context) (models.PersonKind, int64, error) {
	kind, err := kindParam(c)
	if err != nil {
		return "", 0, err
	}
	id, err := idParam(c, "id")
	if err != nil {
		return "", 0, err
	}
	return kind, id, nil
}
