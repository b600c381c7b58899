package cmdutil_test

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rxscan/rxscan/internal/cmdutil"
	"github.com/rxscan/rxscan/pkg/types"
)

func TestTranslateError(t *testing.T) {
	require.NoError(t, cmdutil.TranslateError(nil))

	for _, tc := range []struct {
		name string
		err  error
		msg  string
	}{
		{"no scanner", fmt.Errorf("running: %w", types.ErrNoScannerAvailable), "no scanner found"},
		{"busy", types.ErrBusy, "already in progress"},
		{"scan failed", types.NewScanFailedError("dev1", errors.New("paper jam")), "scan failed on dev1: paper jam"},
		{"decode", types.NewDecodeError("/in.tif", errors.New("bad header")), "could not read image /in.tif: bad header"},
		{"exists", types.NewEncodeError("/out.jpeg", os.ErrExist), "/out.jpeg already exists"},
		{"encode", types.NewEncodeError("/out.jpeg", errors.New("disk full")), "could not write JPEG /out.jpeg: disk full"},
		{"denied", types.NewStorageAccessDeniedError("tok", nil), "no longer accessible"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := cmdutil.TranslateError(tc.err)
			var handled cmdutil.HandledCliError
			require.True(t, errors.As(got, &handled))
			require.ErrorContains(t, got, tc.msg)
		})
	}

	t.Run("unknown errors pass through", func(t *testing.T) {
		err := errors.New("something else")
		require.Equal(t, err, cmdutil.TranslateError(err))
	})

	t.Run("handled errors are not translated again", func(t *testing.T) {
		err := cmdutil.NewHandledCliError(types.ErrBusy)
		require.Equal(t, error(err), cmdutil.TranslateError(err))
	})
}
