package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/packagewjx/procusage/internal/testutils"
	"github.com/packagewjx/procusage/internal/usage"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inspectFixture(t *testing.T) *usage.Report {
	l := logrus.New()
	l.SetOutput(io.Discard)
	normalizer, err := usage.NewNormalizer(usage.Options{}, l)
	require.NoError(t, err)

	path := testutils.CreateDatabase(t, t.TempDir(), "data.sqlite", testutils.ProcessesFixture...)
	report := normalizer.NormalizeWithReport(context.Background(), path)
	require.NoError(t, report.Err)
	return report
}

func TestWriteInspectResult(t *testing.T) {
	report := inspectFixture(t)

	buf := &bytes.Buffer{}
	start := int64(15)
	require.NoError(t, writeInspectResult(buf, report, usage.Range{Start: &start}, false))
	records := make([]map[string]interface{}, 0)
	require.NoError(t, json.Unmarshal(buf.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "com.example.maps", records[0]["package_name"])
	assert.Equal(t, "com.example.chat", records[1]["package_name"])
}

func TestWriteInspectResult_WithReport(t *testing.T) {
	report := inspectFixture(t)

	buf := &bytes.Buffer{}
	require.NoError(t, writeInspectResult(buf, report, usage.Range{}, true))

	result := &struct {
		Report struct {
			Tables []struct {
				Table  string `json:"table"`
				Layout string `json:"layout"`
				Count  int    `json:"count"`
			} `json:"tables"`
		} `json:"report"`
		Records []map[string]interface{} `json:"records"`
	}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), result))
	assert.Len(t, result.Records, 4)
	require.Len(t, result.Report.Tables, 3)
	assert.Equal(t, "processes1", result.Report.Tables[0].Table)
	assert.Equal(t, usage.LayoutGeneric, result.Report.Tables[0].Layout)
	assert.Equal(t, 2, result.Report.Tables[0].Count)
	assert.Equal(t, usage.LayoutPacked, result.Report.Tables[1].Layout)
	assert.Equal(t, 0, result.Report.Tables[2].Count)
}

func TestRangeFromFlags(t *testing.T) {
	r, err := rangeFromFlags(inspectCmd)
	require.NoError(t, err)
	assert.True(t, r.IsZero())

	require.NoError(t, inspectCmd.Flags().Set(FlagEnd, "20"))
	t.Cleanup(func() {
		_ = inspectCmd.Flags().Set(FlagEnd, "0")
		inspectCmd.Flags().Lookup(FlagEnd).Changed = false
	})
	r, err = rangeFromFlags(inspectCmd)
	require.NoError(t, err)
	assert.Nil(t, r.Start)
	require.NotNil(t, r.End)
	assert.Equal(t, int64(20), *r.End)
}
