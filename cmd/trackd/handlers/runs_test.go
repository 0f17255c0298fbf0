package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/fogbank-io/runtrack/cmd/trackd/handlers"
	httptestutil "github.com/fogbank-io/runtrack/internal/testutils/http"
	apirun "github.com/fogbank-io/runtrack/pkg/api/types/runs"
	"github.com/fogbank-io/runtrack/pkg/cmp"
	"github.com/fogbank-io/runtrack/pkg/domain"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	regmock "github.com/fogbank-io/runtrack/pkg/domain/registry/mock"
	"github.com/fogbank-io/runtrack/pkg/utils/rfctime"
	"github.com/fogbank-io/runtrack/pkg/utils/try"
)

func dummyRun(t *testing.T, runId domain.RunId, experiment string) domain.Run {
	t.Helper()
	startTime := try.To(rfctime.ParseRFC3339DateTime(
		"2025-06-01T12:00:00.000+00:00",
	)).OrFatal(t).Time()
	return domain.Run{
		RunBody: domain.RunBody{
			Id:             runId,
			ExperimentId:   1,
			ExperimentName: experiment,
			Status:         domain.Finished,
			StartTime:      startTime,
		},
		Params:  []domain.Param{{Key: "n_estimators", Value: "200"}},
		Metrics: []domain.Metric{{Key: "anomaly_rate", Value: 0.1, LoggedAt: startTime}},
		Tags:    []domain.Tag{{Key: "stage", Value: "train"}},
		Artifacts: []domain.ArtifactRef{
			{Path: "model/model.json", Location: "file:///artifacts/1/model/model.json"},
		},
	}
}

func TestFindRunHandler(t *testing.T) {

	t.Run("it returns OK with found runs", func(t *testing.T) {
		mockReg := regmock.New()
		mockReg.Impl.FindRuns = func(_ context.Context, query domain.RunFindQuery) ([]domain.RunId, error) {
			return []domain.RunId{1, 2}, nil
		}
		runs := map[domain.RunId]domain.Run{
			1: dummyRun(t, 1, "crash-anomaly"),
			2: dummyRun(t, 2, "crash-anomaly"),
		}
		mockReg.Impl.GetRuns = func(_ context.Context, runIds []domain.RunId) (map[domain.RunId]domain.Run, error) {
			return runs, nil
		}

		e := echo.New()
		c, resp := httptestutil.Get(e, "/api/runs?experiment=crash-anomaly&status=finished,failed")

		testee := handlers.FindRunHandler(mockReg)
		if err := testee(c); err != nil {
			t.Fatalf("response is error: %v", err)
		}

		if resp.Result().StatusCode != http.StatusOK {
			t.Fatalf("status code is not 200: %d", resp.Result().StatusCode)
		}

		{
			actual := mockReg.Calls.FindRuns
			expected := []domain.RunFindQuery{
				{
					ExperimentName: "crash-anomaly",
					Status:         []domain.RunStatus{domain.Finished, domain.Failed},
				},
			}
			if len(actual) != 1 ||
				actual[0].ExperimentName != expected[0].ExperimentName ||
				!cmp.SliceEq(actual[0].Status, expected[0].Status) {
				t.Errorf("unmatch: query: (actual, expected) = (%+v, %+v)", actual, expected)
			}
		}

		actual := []apirun.Detail{}
		if err := json.Unmarshal(resp.Body.Bytes(), &actual); err != nil {
			t.Fatalf("response is not json: %v", err)
		}
		expected := []apirun.Detail{
			apirun.ComposeDetail(runs[1]),
			apirun.ComposeDetail(runs[2]),
		}
		if !cmp.SliceEqWith(
			actual, expected,
			func(a, b apirun.Detail) bool { return a.Equal(&b) },
		) {
			t.Errorf("unmatch: body: (actual, expected) = (%+v, %+v)", actual, expected)
		}
	})

	t.Run("it returns Bad Request for unknown status", func(t *testing.T) {
		mockReg := regmock.New()

		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/runs?status=done")

		testee := handlers.FindRunHandler(mockReg)

		err := testee(c)
		if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
			t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
		} else if httperr.Code != http.StatusBadRequest {
			t.Errorf("unmatch: status code: %d != %d", httperr.Code, http.StatusBadRequest)
		}

		if mockReg.Calls.FindRuns.Times() != 0 {
			t.Errorf("FindRuns should not be called")
		}
	})

	t.Run("it returns Service Unavailable when the store is down", func(t *testing.T) {
		mockReg := regmock.New()
		mockReg.Impl.FindRuns = func(_ context.Context, _ domain.RunFindQuery) ([]domain.RunId, error) {
			return nil, domerr.ErrStoreUnavailable
		}

		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/runs")

		testee := handlers.FindRunHandler(mockReg)

		err := testee(c)
		if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
			t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
		} else if httperr.Code != http.StatusServiceUnavailable {
			t.Errorf("unmatch: status code: %d != %d", httperr.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestGetRunHandler(t *testing.T) {

	t.Run("it returns OK with the run", func(t *testing.T) {
		mockReg := regmock.New()
		run := dummyRun(t, 42, "crash-anomaly")
		mockReg.Impl.GetRuns = func(_ context.Context, runIds []domain.RunId) (map[domain.RunId]domain.Run, error) {
			return map[domain.RunId]domain.Run{42: run}, nil
		}

		e := echo.New()
		c, resp := httptestutil.Get(e, "/api/runs/42")
		c.SetPath("/api/runs/:runId")
		c.SetParamNames("runId")
		c.SetParamValues("42")

		testee := handlers.GetRunHandler(mockReg, "runId")
		if err := testee(c); err != nil {
			t.Fatalf("response is error: %v", err)
		}

		if !cmp.SliceEqWith(
			mockReg.Calls.GetRuns, [][]domain.RunId{{42}},
			cmp.SliceEq[domain.RunId],
		) {
			t.Errorf("unmatch: query for GetRuns: %+v", mockReg.Calls.GetRuns)
		}

		actual := apirun.Detail{}
		if err := json.Unmarshal(resp.Body.Bytes(), &actual); err != nil {
			t.Fatalf("response is not json: %v", err)
		}
		expected := apirun.ComposeDetail(run)
		if !actual.Equal(&expected) {
			t.Errorf("unmatch: body: (actual, expected) = (%+v, %+v)", actual, expected)
		}
	})

	for name, testcase := range map[string]struct {
		runId      string
		runs       map[domain.RunId]domain.Run
		statusCode int
	}{
		"it returns Not Found for an unknown run": {
			runId: "999", runs: map[domain.RunId]domain.Run{},
			statusCode: http.StatusNotFound,
		},
		"it returns Bad Request for a non-integer run id": {
			runId:      "not-a-number",
			statusCode: http.StatusBadRequest,
		},
	} {
		t.Run(name, func(t *testing.T) {
			mockReg := regmock.New()
			mockReg.Impl.GetRuns = func(_ context.Context, _ []domain.RunId) (map[domain.RunId]domain.Run, error) {
				return testcase.runs, nil
			}

			e := echo.New()
			c, _ := httptestutil.Get(e, "/api/runs/"+testcase.runId)
			c.SetPath("/api/runs/:runId")
			c.SetParamNames("runId")
			c.SetParamValues(testcase.runId)

			testee := handlers.GetRunHandler(mockReg, "runId")

			err := testee(c)
			if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
				t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
			} else if httperr.Code != testcase.statusCode {
				t.Errorf("unmatch: status code: %d != %d", httperr.Code, testcase.statusCode)
			}
		})
	}
}

func TestGetLatestRunHandler(t *testing.T) {

	t.Run("it resolves the latest finished run by default", func(t *testing.T) {
		mockReg := regmock.New()
		run := dummyRun(t, 7, "crash-anomaly")
		mockReg.Impl.FindLatestRun = func(_ context.Context, experimentName string, status domain.RunStatus) (domain.RunId, error) {
			return 7, nil
		}
		mockReg.Impl.GetRuns = func(_ context.Context, _ []domain.RunId) (map[domain.RunId]domain.Run, error) {
			return map[domain.RunId]domain.Run{7: run}, nil
		}

		e := echo.New()
		c, resp := httptestutil.Get(e, "/api/runs/latest?experiment=crash-anomaly")

		testee := handlers.GetLatestRunHandler(mockReg)
		if err := testee(c); err != nil {
			t.Fatalf("response is error: %v", err)
		}

		{
			actual := mockReg.Calls.FindLatestRun
			if len(actual) != 1 ||
				actual[0].ExperimentName != "crash-anomaly" ||
				actual[0].Status != domain.Finished {
				t.Errorf("unmatch: query for FindLatestRun: %+v", actual)
			}
		}

		actual := apirun.Detail{}
		if err := json.Unmarshal(resp.Body.Bytes(), &actual); err != nil {
			t.Fatalf("response is not json: %v", err)
		}
		expected := apirun.ComposeDetail(run)
		if !actual.Equal(&expected) {
			t.Errorf("unmatch: body: (actual, expected) = (%+v, %+v)", actual, expected)
		}
	})

	t.Run("it returns Bad Request without experiment", func(t *testing.T) {
		mockReg := regmock.New()

		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/runs/latest")

		testee := handlers.GetLatestRunHandler(mockReg)

		err := testee(c)
		if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
			t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
		} else if httperr.Code != http.StatusBadRequest {
			t.Errorf("unmatch: status code: %d != %d", httperr.Code, http.StatusBadRequest)
		}
	})

	t.Run("it returns Not Found when no run matches", func(t *testing.T) {
		mockReg := regmock.New()
		mockReg.Impl.FindLatestRun = func(_ context.Context, _ string, _ domain.RunStatus) (domain.RunId, error) {
			return 0, domerr.ErrNoRunFound
		}

		e := echo.New()
		c, _ := httptestutil.Get(e, "/api/runs/latest?experiment=crash-anomaly")

		testee := handlers.GetLatestRunHandler(mockReg)

		err := testee(c)
		if httperr := new(echo.HTTPError); !errors.As(err, &httperr) {
			t.Fatalf("unmatch: error type: %+v is not echo.HTTPError", err)
		} else if httperr.Code != http.StatusNotFound {
			t.Errorf("unmatch: status code: %d != %d", httperr.Code, http.StatusNotFound)
		}
	})
}
