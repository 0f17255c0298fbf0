package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	apierr "github.com/fogbank-io/runtrack/pkg/api/types/errors"
	apirun "github.com/fogbank-io/runtrack/pkg/api/types/runs"
	"github.com/fogbank-io/runtrack/pkg/domain"
	"github.com/fogbank-io/runtrack/pkg/domain/artifact"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
	"github.com/fogbank-io/runtrack/pkg/utils/slices"
)

func ListArtifactsHandler(reg registry.Interface, paramRunId string) echo.HandlerFunc {

	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		runId, err := parseRunId(c.Param(paramRunId))
		if err != nil {
			return err
		}
		ctx := c.Request().Context()

		refs, err := reg.GetArtifactRefs(ctx, runId)
		if err != nil {
			if errors.Is(err, domerr.ErrMissing) {
				return apierr.NotFound()
			}
			if errors.Is(err, domerr.ErrStoreUnavailable) {
				return apierr.ServiceUnavailable("registry database is not available. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}

		return c.JSON(
			http.StatusOK,
			slices.Map(refs, func(r domain.ArtifactRef) apirun.Artifact {
				return apirun.Artifact{Path: r.Path, Location: r.Location}
			}),
		)
	}
}

func GetArtifactHandler(store artifact.Store, paramRunId string) echo.HandlerFunc {

	return func(c echo.Context) error {
		runId, err := parseRunId(c.Param(paramRunId))
		if err != nil {
			return err
		}
		path := c.Param("*")
		if path == "" {
			return apierr.BadRequest("artifact path is required", nil)
		}
		ctx := c.Request().Context()

		content, err := store.Get(ctx, runId, path)
		if err != nil {
			if errors.Is(err, domerr.ErrArtifactNotFound) {
				return apierr.NotFound()
			}
			return apierr.InternalServerError(err)
		}

		return c.Blob(http.StatusOK, "application/octet-stream", content)
	}
}

// PutArtifactHandler stores the request body as an artifact of the run
// and records the reference in the registry.
func PutArtifactHandler(reg registry.Interface, store artifact.Store, paramRunId string) echo.HandlerFunc {

	return func(c echo.Context) error {
		c.Response().Header().Add("Content-Type", "application/json")

		runId, err := parseRunId(c.Param(paramRunId))
		if err != nil {
			return err
		}
		path := c.Param("*")
		if path == "" {
			return apierr.BadRequest("artifact path is required", nil)
		}
		ctx := c.Request().Context()

		content, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return apierr.BadRequest("request body cannot be read", err)
		}

		location, err := store.Put(ctx, runId, path, content)
		if err != nil {
			return apierr.InternalServerError(err)
		}

		if err := reg.RegisterArtifact(ctx, runId, path, location); err != nil {
			if errors.Is(err, domerr.ErrMissing) {
				return apierr.NotFound()
			}
			if errors.Is(err, domerr.ErrStoreUnavailable) {
				return apierr.ServiceUnavailable("registry database is not available. retry later.", err)
			}
			return apierr.InternalServerError(err)
		}

		return c.JSON(http.StatusOK, apirun.Artifact{Path: path, Location: location})
	}
}
