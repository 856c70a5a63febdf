package cmd

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tagger/internal/models"
	"github.com/joescharf/tagger/internal/tagging"
)

func resetOut() {
	ui.Out.(interface{ Reset() }).Reset()
}

func TestParseInstanceID(t *testing.T) {
	id, err := parseInstanceID("42")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	for _, bad := range []string{"", "-1", "abc", "1.5"} {
		_, err := parseInstanceID(bad)
		assert.Error(t, err, bad)
	}
}

func TestBindAndInstances(t *testing.T) {
	testEnv(t)

	err := bindRun("7", tagging.ParseRefs([]string{"go", "db"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, tagging.ErrNotExists)

	bindAutoCreate = true
	require.NoError(t, bindRun("7", tagging.ParseRefs([]string{"go", "db"})))
	bindAutoCreate = false
	require.NoError(t, bindRun("9", tagging.ParseRefs([]string{"1"})))

	ui.JSON = true
	resetOut()
	listCount = true
	require.NoError(t, instancesRun([]string{"go"}))
	assert.JSONEq(t, `{"list": [7, 9], "total": 2}`, stdout())

	resetOut()
	listCount = false
	require.NoError(t, instancesRun([]string{"go", "db"}))
	assert.JSONEq(t, `{"list": [7]}`, stdout())

	resetOut()
	require.NoError(t, instanceTagsRun("7"))
	var tags tagging.ListResult[models.Tag]
	require.NoError(t, json.Unmarshal([]byte(stdout()), &tags))
	require.Len(t, tags.List, 2)
	assert.Equal(t, "go", tags.List[0].Name)
	assert.Equal(t, tagging.AutoCreateDesc, tags.List[0].Desc)

	ui.JSON = false
	require.NoError(t, unbindRun("7", []string{"go"}))

	ui.JSON = true
	resetOut()
	require.NoError(t, instancesRun([]string{"go"}))
	assert.JSONEq(t, `{"list": [9]}`, stdout())
}

func TestBind_NumericTagName(t *testing.T) {
	testEnv(t)
	bindAutoCreate = true

	require.NoError(t, bindRun("5", tagging.ParseRefs([]string{"name:2024"})))

	ui.JSON = true
	resetOut()
	require.NoError(t, instanceTagsRun("5"))
	var tags tagging.ListResult[models.Tag]
	require.NoError(t, json.Unmarshal([]byte(stdout()), &tags))
	require.Len(t, tags.List, 1)
	assert.Equal(t, "2024", tags.List[0].Name)
	assert.Equal(t, uint64(1), tags.List[0].ID)

	resetOut()
	require.NoError(t, instancesRun([]string{"name:2024"}))
	assert.JSONEq(t, `{"list": [5]}`, stdout())

	// Without the prefix 2024 is an id, and no such tag exists.
	bindAutoCreate = false
	err := bindRun("6", tagging.ParseRefs([]string{"2024"}))
	assert.ErrorIs(t, err, tagging.ErrNotExists)

	ui.JSON = false
	require.NoError(t, unbindRun("5", []string{"name:2024"}))
	ui.JSON = true
	resetOut()
	require.NoError(t, instancesRun([]string{"name:2024"}))
	assert.JSONEq(t, `{"list": []}`, stdout())
}

func TestBind_InvalidInstance(t *testing.T) {
	testEnv(t)

	err := bindRun("x", tagging.ParseRefs([]string{"go"}))
	require.Error(t, err)
	assert.Contains(t, errors.FlattenHints(err), "non-negative")
}

func TestUnbind_DryRun(t *testing.T) {
	testEnv(t)
	bindAutoCreate = true
	require.NoError(t, bindRun("1", tagging.ParseRefs([]string{"go"})))

	dryRun = true
	ui.DryRun = true
	require.NoError(t, unbindRun("1", []string{"go"}))

	svc, err := getService()
	require.NoError(t, err)
	res, err := svc.ListInstanceTags(context.Background(), tagging.ListInstanceTagsOptions{InstanceID: 1})
	require.NoError(t, err)
	assert.Len(t, res.List, 1)
}

func TestInstances_Empty(t *testing.T) {
	testEnv(t)

	require.NoError(t, instancesRun(nil))
	assert.Contains(t, stdout(), "No instances found")
}
