package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apierr "github.com/fogbank-io/runtrack/pkg/api/types/errors"
	apiexp "github.com/fogbank-io/runtrack/pkg/api/types/experiments"
	"github.com/fogbank-io/runtrack/pkg/domain"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
	"github.com/fogbank-io/runtrack/pkg/utils/slices"
)

func GetExperimentsHandler(reg registry.Interface) echo.HandlerFunc {

	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")
		ctx := c.Request().Context()

		experiments, err := reg.GetExperiments(ctx)
		if err != nil {
			if errors.Is(err, domerr.ErrStoreUnavailable) {
				return apierr.ServiceUnavailable("registry database is not available. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}

		return c.JSON(
			http.StatusOK,
			slices.Map(experiments, func(e domain.Experiment) apiexp.Summary {
				return apiexp.ComposeSummary(e)
			}),
		)
	}
}
