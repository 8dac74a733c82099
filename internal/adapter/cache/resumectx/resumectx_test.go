package resumectx_test

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/recruiter-pipeline/internal/adapter/cache/resumectx"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

func TestCache_PutAndGet(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := resumectx.New(rdb)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "job-1", "resume-1")
	require.NoError(t, err)
	require.False(t, ok)

	r := domain.ResumeDto{JobID: "job-1", ResumeID: "resume-1", TotalYearsExperience: 4}
	require.NoError(t, c.Put(ctx, r))

	got, ok, err := c.Get(ctx, "job-1", "resume-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, r, got)
}
