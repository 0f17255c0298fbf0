package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	apierr "github.com/fogbank-io/runtrack/pkg/api/types/errors"
	apipipe "github.com/fogbank-io/runtrack/pkg/api/types/pipelines"
	"github.com/fogbank-io/runtrack/pkg/domain"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
	kstrings "github.com/fogbank-io/runtrack/pkg/utils/strings"
)

func FindPipelineRunHandler(reg registry.Interface) echo.HandlerFunc {

	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		states := []domain.PipelineState{}
		for _, p := range kstrings.SplitIfNotEmpty(c.QueryParam("state"), ",") {
			s, err := domain.AsPipelineState(p)
			if err != nil {
				return apierr.BadRequest(
					`"state" should be a pipeline state like "pending" or "scoring_finished"`,
					err,
				)
			}
			states = append(states, s)
		}

		ctx := c.Request().Context()

		pipelineRunIds, err := reg.FindPipelineRuns(ctx, states)
		if err != nil {
			if errors.Is(err, domerr.ErrStoreUnavailable) {
				return apierr.ServiceUnavailable("registry database is not available. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}

		result, err := reg.GetPipelineRuns(ctx, pipelineRunIds)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		resp := make([]apipipe.Detail, 0, len(result))
		for _, id := range pipelineRunIds {
			if p, ok := result[id]; ok {
				resp = append(resp, apipipe.ComposeDetail(p))
			}
		}

		return c.JSON(http.StatusOK, resp)
	}
}

func GetPipelineRunHandler(reg registry.Interface, paramPipelineRunId string) echo.HandlerFunc {

	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		id, err := strconv.ParseInt(c.Param(paramPipelineRunId), 10, 64)
		if err != nil {
			return apierr.BadRequest(`"pipelineRunId" should be an integer`, err)
		}
		pipelineRunId := domain.PipelineRunId(id)
		ctx := c.Request().Context()

		result, err := reg.GetPipelineRuns(ctx, []domain.PipelineRunId{pipelineRunId})
		if err != nil {
			if errors.Is(err, domerr.ErrStoreUnavailable) {
				return apierr.ServiceUnavailable("registry database is not available. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}

		p, ok := result[pipelineRunId]
		if !ok {
			return apierr.NotFound()
		}

		return c.JSON(http.StatusOK, apipipe.ComposeDetail(p))
	}
}
