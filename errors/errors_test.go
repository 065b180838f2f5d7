package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestIs(t *testing.T) {
	err1 := New("error 1")
	err2 := New("error 2")
	wrapped := Wrap(err1, "wrapped")

	assert.True(t, Is(wrapped, err1))
	assert.False(t, Is(wrapped, err2))
	assert.False(t, Is(nil, err1))
}

func TestWithDetail(t *testing.T) {
	err := New("error")
	withDetail := WithDetail(err, "detailed information")

	details := GetAllDetails(withDetail)
	require.Len(t, details, 1)
	assert.Equal(t, "detailed information", details[0])
}

func TestStackTrace(t *testing.T) {
	err := Integrityf("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestTaxonomy(t *testing.T) {
	driverErr := New("sql: database is closed")

	testCases := []struct {
		name     string
		err      error
		category string
		fatal    bool
	}{
		{
			name:     "connectivity",
			err:      Connectivityf(driverErr, "read collection %s", "MusicActivity"),
			category: "connectivity",
			fatal:    true,
		},
		{
			name:     "integrity",
			err:      Integrityf("truth conflict for %s/%s", "q1", "MusicActivity"),
			category: "integrity",
			fatal:    true,
		},
		{
			name:     "configuration",
			err:      Configurationf("control percentage %f outside [0,1]", 1.5),
			category: "configuration",
			fatal:    true,
		},
		{
			name:     "relationship resolution",
			err:      Relationshipf(driverErr, "join %s with %s", "TaskActivity", "MusicActivity"),
			category: "relationship",
			fatal:    false,
		},
		{
			name:     "unclassified",
			err:      New("boom"),
			category: "internal",
			fatal:    true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.category, Category(tc.err))
			assert.Equal(t, tc.fatal, IsFatal(tc.err))

			// Category survives additional wrapping
			outer := Wrap(tc.err, "round 2")
			assert.Equal(t, tc.category, Category(outer))
		})
	}
}

func TestConnectivityKeepsDriverDetail(t *testing.T) {
	driverErr := New("sql: database is closed")
	err := Connectivityf(driverErr, "ablate %s", "LocationActivity")

	assert.Contains(t, err.Error(), "ablate LocationActivity")
	assert.Contains(t, FlattenDetails(err), "sql: database is closed")
}

func TestJoinedErrorsKeepCategory(t *testing.T) {
	err := Join(
		Relationshipf(nil, "join failed"),
		Integrityf("no backup for %s", "TaskActivity"),
	)

	assert.True(t, IsIntegrity(err))
	assert.True(t, IsRelationshipResolution(err))
	assert.True(t, IsFatal(err))

	assert.NotNil(t, GetStack(err), "joined errors record where they were joined")
	assert.Contains(t, fmt.Sprintf("%+v", err), "TestJoinedErrorsKeepCategory")

	detailed := WithDetail(Join(err, New("second")), "restore of 2 collections")
	assert.Equal(t, "restore of 2 collections", FlattenDetails(detailed))
	assert.True(t, IsIntegrity(detailed))

	assert.Nil(t, Join(nil, nil))
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.False(t, IsFatal(nil))
	assert.Equal(t, "", Category(nil))
}

func ExampleIntegrityf() {
	err := Integrityf("truth conflict for %s/%s", "q1", "MusicActivity")
	fmt.Println(err)
	// Output: truth conflict for q1/MusicActivity: integrity violation
}
