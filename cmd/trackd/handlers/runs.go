package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apierr "github.com/fogbank-io/runtrack/pkg/api/types/errors"
	apirun "github.com/fogbank-io/runtrack/pkg/api/types/runs"
	"github.com/fogbank-io/runtrack/pkg/domain"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
	kstrings "github.com/fogbank-io/runtrack/pkg/utils/strings"
)

func FindRunHandler(reg registry.Interface) echo.HandlerFunc {

	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		query := domain.RunFindQuery{
			ExperimentName: c.QueryParam("experiment"),
			Status:         []domain.RunStatus{},
		}
		for _, p := range kstrings.SplitIfNotEmpty(c.QueryParam("status"), ",") {
			s, err := domain.AsRunStatus(p)
			if err != nil {
				return apierr.BadRequest(
					`"status" should be one of "running", "finished" or "failed"`,
					err,
				)
			}
			query.Status = append(query.Status, s)
		}

		ctx := c.Request().Context()

		runIds, err := reg.FindRuns(ctx, query)
		if err != nil {
			if errors.Is(err, domerr.ErrStoreUnavailable) {
				return apierr.ServiceUnavailable("registry database is not available. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}

		result, err := reg.GetRuns(ctx, runIds)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		resp := make([]apirun.Detail, 0, len(result))
		for _, runId := range runIds {
			if r, ok := result[runId]; ok {
				resp = append(resp, apirun.ComposeDetail(r))
			}
		}

		return c.JSON(http.StatusOK, resp)
	}
}

func GetRunHandler(reg registry.Interface, paramRunId string) echo.HandlerFunc {

	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		runId, err := parseRunId(c.Param(paramRunId))
		if err != nil {
			return err
		}
		ctx := c.Request().Context()

		runs, err := reg.GetRuns(ctx, []domain.RunId{runId})
		if err != nil {
			if errors.Is(err, domerr.ErrStoreUnavailable) {
				return apierr.ServiceUnavailable("registry database is not available. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}

		run, ok := runs[runId]
		if !ok {
			return apierr.NotFound()
		}

		return c.JSON(http.StatusOK, apirun.ComposeDetail(run))
	}
}

// GetLatestRunHandler resolves the run a scorer would pick:
// the latest run of the experiment in the given status.
func GetLatestRunHandler(reg registry.Interface) echo.HandlerFunc {

	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		experiment := c.QueryParam("experiment")
		if experiment == "" {
			return apierr.BadRequest(`"experiment" is required`, nil)
		}

		status := domain.Finished
		if p := c.QueryParam("status"); p != "" {
			s, err := domain.AsRunStatus(p)
			if err != nil {
				return apierr.BadRequest(
					`"status" should be one of "running", "finished" or "failed"`,
					err,
				)
			}
			status = s
		}

		ctx := c.Request().Context()

		runId, err := reg.FindLatestRun(ctx, experiment, status)
		if err != nil {
			if errors.Is(err, domerr.ErrNoRunFound) {
				return apierr.NotFound()
			}
			if errors.Is(err, domerr.ErrStoreUnavailable) {
				return apierr.ServiceUnavailable("registry database is not available. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}

		runs, err := reg.GetRuns(ctx, []domain.RunId{runId})
		if err != nil {
			return apierr.InternalServerError(err)
		}

		run, ok := runs[runId]
		if !ok {
			return apierr.NotFound()
		}

		return c.JSON(http.StatusOK, apirun.ComposeDetail(run))
	}
}

func parseRunId(param string) (domain.RunId, error) {
	id, err := strconv.ParseInt(param, 10, 64)
	if err != nil {
		return 0, apierr.BadRequest(`"runId" should be an integer`, err)
	}
	return domain.RunId(id), nil
}
