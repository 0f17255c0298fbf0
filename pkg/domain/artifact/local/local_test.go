package local_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fogbank-io/runtrack/pkg/domain"
	"github.com/fogbank-io/runtrack/pkg/domain/artifact/local"
	domerr "github.com/fogbank-io/runtrack/pkg/domain/errors"
	"github.com/fogbank-io/runtrack/pkg/utils/try"
)

func TestStore_PutAndGet(t *testing.T) {
	ctx := context.Background()

	t.Run("bytes put at a path are read back by the returned location", func(t *testing.T) {
		testee := try.To(local.New(t.TempDir())).OrFatal(t)

		payload := []byte(`{"trees": []}`)
		location := try.To(
			testee.Put(ctx, domain.RunId(1), "model/model.json", payload),
		).OrFatal(t)
		if location == "" {
			t.Error("location should not be empty")
		}

		actual := try.To(testee.Get(ctx, domain.RunId(1), "model/model.json")).OrFatal(t)
		if string(actual) != string(payload) {
			t.Errorf("payload is broken: %s", string(actual))
		}
	})

	t.Run("the same path under different runs does not collide", func(t *testing.T) {
		testee := try.To(local.New(t.TempDir())).OrFatal(t)

		loc1 := try.To(testee.Put(ctx, domain.RunId(1), "scored.csv", []byte("run 1"))).OrFatal(t)
		loc2 := try.To(testee.Put(ctx, domain.RunId(2), "scored.csv", []byte("run 2"))).OrFatal(t)

		if loc1 == loc2 {
			t.Fatalf("locations collide: %s", loc1)
		}
		if got := try.To(testee.Get(ctx, domain.RunId(1), "scored.csv")).OrFatal(t); string(got) != "run 1" {
			t.Errorf("unexpected content: %s", string(got))
		}
		if got := try.To(testee.Get(ctx, domain.RunId(2), "scored.csv")).OrFatal(t); string(got) != "run 2" {
			t.Errorf("unexpected content: %s", string(got))
		}
	})

	t.Run("putting again at the same path overwrites", func(t *testing.T) {
		testee := try.To(local.New(t.TempDir())).OrFatal(t)

		if _, err := testee.Put(ctx, domain.RunId(1), "scored.csv", []byte("old")); err != nil {
			t.Fatal(err)
		}
		if _, err := testee.Put(ctx, domain.RunId(1), "scored.csv", []byte("new")); err != nil {
			t.Fatal(err)
		}

		if got := try.To(testee.Get(ctx, domain.RunId(1), "scored.csv")).OrFatal(t); string(got) != "new" {
			t.Errorf("unexpected content: %s", string(got))
		}
	})

	t.Run("getting an artifact never put returns ErrArtifactNotFound", func(t *testing.T) {
		testee := try.To(local.New(t.TempDir())).OrFatal(t)

		_, err := testee.Get(ctx, domain.RunId(1), "no-such-file")
		if !errors.Is(err, domerr.ErrArtifactNotFound) {
			t.Errorf("expected ErrArtifactNotFound, got: %v", err)
		}
	})

	for name, path := range map[string]string{
		"an absolute artifact path is rejected":          "/etc/passwd",
		"a path escaping the run directory is rejected":  "../../../etc/passwd",
		"an empty artifact path is rejected":             "",
		"a dressed-up escaping path is rejected as well": "model/../../2/model.json",
	} {
		t.Run(name, func(t *testing.T) {
			testee := try.To(local.New(t.TempDir())).OrFatal(t)

			if _, err := testee.Put(ctx, domain.RunId(1), path, []byte("x")); err == nil {
				t.Errorf("put: path '%s' should be rejected", path)
			}
			if _, err := testee.Get(ctx, domain.RunId(1), path); err == nil {
				t.Errorf("get: path '%s' should be rejected", path)
			}
		})
	}
}
