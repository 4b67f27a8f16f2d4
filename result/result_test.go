package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapture(t *testing.T) {
	errBoom := errors.New("boom")

	testCases := []struct {
		name     string
		fn       func() (int, error)
		wantData int
		wantErr  bool
		panicked bool
	}{
		{
			name:     "value",
			fn:       func() (int, error) { return 7, nil },
			wantData: 7,
		},
		{
			name:    "error",
			fn:      func() (int, error) { return 7, errBoom },
			wantErr: true,
		},
		{
			name:     "panic",
			fn:       func() (int, error) { panic("bad selector") },
			wantErr:  true,
			panicked: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := Capture(tc.fn)
			if !tc.wantErr {
				require.True(t, r.OK())
				require.Equal(t, tc.wantData, r.Data)
				return
			}

			require.False(t, r.OK())
			require.Zero(t, r.Data)

			var pe *PanicError
			require.Equal(t, tc.panicked, errors.As(r.Err, &pe))
		})
	}
}

func TestPanicErrorUnwrap(t *testing.T) {
	errInner := errors.New("inner")

	err := Do(func() error { panic(errInner) })
	require.ErrorIs(t, err, errInner)
}

func TestOfAndUnwrap(t *testing.T) {
	v, err := Of("settled").Unwrap()
	require.NoError(t, err)
	require.Equal(t, "settled", v)

	_, err = FromErr(0, errors.New("x")).Unwrap()
	require.Error(t, err)
}
