package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicate/cacheplayer/pkg/transport"
)

func TestNewPendingRequest(t *testing.T) {
	t.Run("content info wins over data", func(t *testing.T) {
		p, err := newPendingRequest(assetURL, nil, NewContentInfoRequest(NewDataRequest(0, 2, nil)))
		require.NoError(t, err)
		assert.Equal(t, pendingContentInfo, p.kind)
		assert.Equal(t, transport.NoTask, p.taskID)
	})

	t.Run("data cursor starts at the current offset", func(t *testing.T) {
		data := NewDataRequest(100, 50, nil)
		data.Respond(make([]byte, 20))
		p, err := newPendingRequest(assetURL, nil, NewRequest(data))
		require.NoError(t, err)
		assert.Equal(t, pendingData, p.kind)
		assert.Equal(t, int64(120), p.offset)
		assert.Equal(t, int64(30), p.remaining)
	})

	t.Run("neither shape", func(t *testing.T) {
		_, err := newPendingRequest(assetURL, nil, NewRequest(nil))
		assert.ErrorIs(t, err, ErrUnsupportedRequest)
	})
}

func TestTransportRequest(t *testing.T) {
	tc := []struct {
		name          string
		req           *Request
		headers       map[string]string
		expectedRange string
	}{
		{
			name:          "data range",
			req:           NewRequest(NewDataRequest(100, 100, nil)),
			expectedRange: "bytes=100-199",
		},
		{
			name: "content info without data",
			req:  NewContentInfoRequest(nil),
		},
		{
			name: "zero length",
			req:  NewRequest(NewDataRequest(100, 0, nil)),
		},
		{
			name:          "custom range replaces the computed one",
			req:           NewRequest(NewDataRequest(100, 100, nil)),
			headers:       map[string]string{"range": "bytes=0-"},
			expectedRange: "bytes=0-",
		},
	}

	for _, tc := range tc {
		t.Run(tc.name, func(t *testing.T) {
			p, err := newPendingRequest(assetURL, tc.headers, tc.req)
			require.NoError(t, err)
			req := p.transportRequest()
			assert.Equal(t, assetURL, req.URL)
			assert.Equal(t, tc.expectedRange, req.Header.Get("Range"))
			if tc.expectedRange == "" {
				assert.Empty(t, req.Header.Values("Range"))
			} else {
				assert.Len(t, req.Header.Values("Range"), 1)
			}
		})
	}
}

func TestRespondTruncatesToCursor(t *testing.T) {
	data := NewDataRequest(0, 10, nil)
	p, err := newPendingRequest(assetURL, nil, NewRequest(data))
	require.NoError(t, err)

	assert.Equal(t, int64(6), p.respond(make([]byte, 6)))
	assert.Equal(t, int64(4), p.respond(make([]byte, 6)))
	assert.Equal(t, int64(0), p.respond(make([]byte, 6)))
	assert.Equal(t, int64(10), data.Delivered())
	assert.Zero(t, p.remaining)
}
