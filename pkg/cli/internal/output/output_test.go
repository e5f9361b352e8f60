package output

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, map[string]int{"count": 2}))
	assert.Equal(t, "{\n  \"count\": 2\n}\n", buf.String())
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tw := Table(&buf)
	fmt.Fprintln(tw, "ID\tROUTE")
	fmt.Fprintln(tw, "c1\t/chat")
	require.NoError(t, tw.Flush())
	assert.Equal(t, "ID  ROUTE\nc1  /chat\n", buf.String())
}

func TestWarn(t *testing.T) {
	var buf bytes.Buffer
	Warn(&buf, "%d dropped", 3)
	assert.Equal(t, "Warning: 3 dropped\n", buf.String())
}
