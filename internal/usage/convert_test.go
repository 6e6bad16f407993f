package usage

import (
	"encoding/json"
	"testing"

	"github.com/packagewjx/procusage/pkg/core"
	"github.com/stretchr/testify/assert"
)

func TestConversions(t *testing.T) {
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, "[1, 2]", stringify([]byte("[1, 2]")))
	assert.Equal(t, "42", stringify(int64(42)))
	assert.Equal(t, "1.5", stringify(1.5))

	assert.Nil(t, toNumber(nil))
	assert.Nil(t, toNumber("abc"))
	assert.Equal(t, json.Number("12"), *toNumber(" 12 "))
	assert.Equal(t, json.Number("1024"), *toNumber(int64(1024)))

	assert.Nil(t, toTimestamp(nil))
	assert.Equal(t, &core.Timestamp{Value: "7", Numeric: true}, toTimestamp(int64(7)))
	assert.Equal(t, &core.Timestamp{Value: "7"}, toTimestamp("7"))
}
