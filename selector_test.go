package evloop

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSelectorRegisterAndSelectReportsToken(t *testing.T) {
	sel, err := newSelector()
	require.NoError(t, err)
	defer sel.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	const tok = Token(123)
	require.NoError(t, sel.Register(int(r.Fd()), tok, InterestReadable))

	_, err = w.Write([]byte("ping"))
	require.NoError(t, err)

	events, err := sel.Select(nil, time.Second)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, int(r.Fd()), events[0].FD)
	require.Equal(t, tok, events[0].Token)
	require.True(t, events[0].Readable)
}

func TestSelectorDeregisterStopsReporting(t *testing.T) {
	sel, err := newSelector()
	require.NoError(t, err)
	defer sel.Close()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, sel.Register(int(r.Fd()), Token(1), InterestReadable))
	require.NoError(t, sel.Deregister(int(r.Fd())))

	_, err = w.Write([]byte("ping"))
	require.NoError(t, err)

	events, err := sel.Select(nil, 50*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, events)
}
