package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/fogbank-io/runtrack/cmd/trackd/handlers"
	"github.com/fogbank-io/runtrack/pkg/domain/artifact"
	"github.com/fogbank-io/runtrack/pkg/domain/registry"
	"github.com/fogbank-io/runtrack/pkg/utils/echoutil"
)

const API_ROOT = "/api"

func api(subpath string) string {
	if !strings.HasSuffix(subpath, "/") {
		subpath += "/"
	}
	return fmt.Sprintf("%s/%s", API_ROOT, subpath)
}

func BuildServer(reg registry.Interface, store artifact.Store, loglevel string) *echo.Echo {

	e := echo.New()

	echoutil.SetLevel(e, loglevel)
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}

	// artifact paths are file paths; keep them as sent.
	e.Pre(middleware.AddTrailingSlashWithConfig(middleware.TrailingSlashConfig{
		Skipper: func(c echo.Context) bool {
			return strings.Contains(c.Request().URL.Path, "/artifacts/")
		},
	}))

	e.Use(echoutil.LogHandlerFunc)

	e.GET(api("experiments"), handlers.GetExperimentsHandler(reg))

	e.GET(api("runs"), handlers.FindRunHandler(reg))
	e.GET(api("runs/latest"), handlers.GetLatestRunHandler(reg))
	e.GET(api("runs/:runId"), handlers.GetRunHandler(reg, "runId"))

	e.GET(api("runs/:runId/artifacts"), handlers.ListArtifactsHandler(reg, "runId"))
	e.GET(API_ROOT+"/runs/:runId/artifacts/*", handlers.GetArtifactHandler(store, "runId"))
	e.PUT(API_ROOT+"/runs/:runId/artifacts/*", handlers.PutArtifactHandler(reg, store, "runId"))

	e.GET(api("pipelines"), handlers.FindPipelineRunHandler(reg))
	e.GET(api("pipelines/:pipelineRunId"), handlers.GetPipelineRunHandler(reg, "pipelineRunId"))

	e.GET("/health/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return e
}
