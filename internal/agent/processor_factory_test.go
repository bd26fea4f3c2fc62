package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/docformat/pkg/logger"
)

func TestGetDecoder(t *testing.T) {
	f := NewProcessorFactory(logger.NewNop())

	for _, name := range []string{"a.docx", "B.DOCX", "dir/c.doc"} {
		d, err := f.GetDecoder(name)
		require.NoError(t, err, name)
		assert.True(t, d.CanDecode(".docx"))
	}

	_, err := f.GetDecoder("notes.pdf")
	assert.Error(t, err)
	_, err = f.GetDecoder("README")
	assert.Error(t, err)
}
