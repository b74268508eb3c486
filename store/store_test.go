package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/nvr-ai/go-cec/images"
	"github.com/nvr-ai/go-cec/models/postprocess"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	log, _ := test.NewNullLogger()
	s, err := Open(filepath.Join(t.TempDir(), "cec.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_Migrates(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cec.db")
	s, err := Open(path, nil)
	require.NoError(t, err)
	id, err := s.SaveRun(context.Background(), Run{Image: "a.jpg", Classes: []string{"person"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, nil)
	require.NoError(t, err, "migrations must be idempotent")
	defer s.Close()

	run, err := s.Run(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", run.Image)
}

func TestSaveRun_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	created := time.UnixMilli(1_760_000_000_123)
	s.now = func() time.Time { return created }

	objects := postprocess.Set{
		{ClassName: "person", ClassID: 0, Confidence: 0.877, Box: images.Box{X1: 20, Y1: 41, X2: 202, Y2: 400}},
		{ClassName: "chair", ClassID: 1, Confidence: 0.123, Box: images.Box{X1: -3, Y1: 0, X2: 960, Y2: 540}},
	}
	id, err := s.SaveRun(context.Background(), Run{
		Image:      "rgb.png",
		CheckImage: "depth.png",
		Classes:    []string{"person", "chair"},
		Objects:    objects,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	run, err := s.Run(context.Background(), id)
	require.NoError(t, err)

	expected := &Run{
		ID:         id,
		Image:      "rgb.png",
		CheckImage: "depth.png",
		Classes:    []string{"person", "chair"},
		CreatedAt:  created,
		Objects:    objects,
	}
	if diff := cmp.Diff(expected, run); diff != "" {
		t.Errorf("Run() mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRun_KeepsGivenID(t *testing.T) {
	s := openTestStore(t)
	id := uuid.New()

	got, err := s.SaveRun(context.Background(), Run{ID: id, Image: "a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = s.SaveRun(context.Background(), Run{ID: id, Image: "b.jpg"})
	assert.Error(t, err, "duplicate run ids are rejected")

	objects, err := s.Objects(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestRun_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Run(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRunNotFound)

	objects, err := s.Objects(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, objects)
	assert.Empty(t, objects)
}

func TestClassCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.SaveRun(ctx, Run{Image: "1.jpg", Objects: postprocess.Set{
		{ClassName: "person"}, {ClassName: "person"}, {ClassName: "dog"},
	}})
	require.NoError(t, err)
	_, err = s.SaveRun(ctx, Run{Image: "2.jpg", Objects: postprocess.Set{{ClassName: "dog"}}})
	require.NoError(t, err)

	counts, err := s.ClassCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"person": 2, "dog": 2}, counts)
}
