package common

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type columnForm struct {
	Column string `form:"column" validate:"required"`
}

func TestGenericEchoValidator(t *testing.T) {
	v := &GenericEchoValidator{}

	if err := v.Validate(&columnForm{Column: "ImgURL"}); err != nil {
		t.Fatalf("expected valid form, got %v", err)
	}

	err := v.Validate(&columnForm{})
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", httpErr.Code)
	}
	if msg, _ := httpErr.Message.(string); !strings.Contains(msg, "Column:required") {
		t.Errorf("unexpected message %v", httpErr.Message)
	}
}
