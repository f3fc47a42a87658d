package utils_test

import (
	"encoding/json"
	"testing"

	"github.com/ranierimazili/o2b2-fido-client/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "b", utils.FirstNonEmpty("", "b", "c"))
	require.Equal(t, "", utils.FirstNonEmpty("", ""))
}

func TestPrettyJSON(t *testing.T) {
	require.Equal(t, "{\n  \"a\": 1\n}", utils.PrettyJSON(json.RawMessage(`{"a":1}`)))
	require.Equal(t, "{\n  \"b\": \"x\"\n}", utils.PrettyJSON(map[string]string{"b": "x"}))
	require.Equal(t, "not json", utils.PrettyJSON(json.RawMessage(`not json`)))
}

func TestPointers(t *testing.T) {
	require.Equal(t, 0, utils.Value[int](nil))
	require.Equal(t, "x", utils.Value(utils.Ptr("x")))
}
