package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mando-03/nl2sql-mcp/pkg/schema"
)

// newSQLiteOptions gives each test its own named shared-cache in-memory
// database: a bare ":memory:" DSN would hand every pooled connection a
// distinct, empty database once database/sql opens more than one
// connection, and an unnamed "cache=shared" DSN would leak tables between
// tests that happen to share a process.
func newSQLiteOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		DSN:            fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Dialect:        schema.DialectSQLite,
		FastStartCap:   300,
		SampleWorkers:  2,
		SampleRowLimit: 50,
		SampleTimeout:  5 * time.Second,
		EncoderDims:    32,
	}
}

func TestCoordinator_StartsIdleThenReady(t *testing.T) {
	c := New(newSQLiteOptions(t))
	assert.Equal(t, PhaseIdle, c.State().Phase)

	err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseReady, c.State().Phase)
	assert.True(t, c.Ready())

	active, ok := c.Card()
	require.True(t, ok)
	assert.NotEmpty(t, active.ReflectionHash)

	c.Stop(2 * time.Second)
	assert.Equal(t, PhaseStopped, c.State().Phase)
}

func TestCoordinator_FailsOnBadDSNWithoutPanicking(t *testing.T) {
	opts := newSQLiteOptions(t)
	opts.DSN = "/nonexistent/path/that/does/not/exist/db.sqlite?mode=ro"
	c := New(opts)

	err := c.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, PhaseFailed, c.State().Phase)
}

func TestCoordinator_RetrievalAndPlannerRequireAReadyCard(t *testing.T) {
	c := New(newSQLiteOptions(t))

	_, err := c.Retrieval()
	assert.Error(t, err)

	_, err = c.Planner()
	assert.Error(t, err)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop(time.Second)

	eng, err := c.Retrieval()
	require.NoError(t, err)
	assert.NotNil(t, eng)

	p, err := c.Planner()
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestCoordinator_RetrievalIsCachedAcrossCalls(t *testing.T) {
	c := New(newSQLiteOptions(t))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop(time.Second)

	first, err := c.Retrieval()
	require.NoError(t, err)
	second, err := c.Retrieval()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestCoordinator_StateAttemptsIsOneAfterFirstStart(t *testing.T) {
	c := New(newSQLiteOptions(t))
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 1, c.State().Attempts)
	c.Stop(time.Second)
}
