package werror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	err := NewNotFound("curdling not found")
	err = err.Wrap(fmt.Errorf("no upstream index answered"))
	require.Equal(t, "curdling not found: no upstream index answered", err.Error())
	require.Equal(t, "curdling not found", err.Message())

	err = err.EDetail("package_name", "curdling")
	require.Equal(t, "curdling not found [package_name=curdling]: no upstream index answered", err.Error())

	err = err.Wrap(NewTransport("connection reset", errors.New("i/o timeout")))
	require.Contains(t, err.Error(), "connection reset")
	require.Contains(t, err.Error(), "i/o timeout")
}

func TestMultiError(t *testing.T) {
	var results *multierror.Error
	results = multierror.Append(results, fmt.Errorf("error 1: %w", errors.New("1")))
	results = multierror.Append(results, NewBuildFailure("wheel build failed", errors.New("exit status 1")))
	results = multierror.Append(results, fmt.Errorf("error 3: %w", errors.New("3")))

	err := results.ErrorOrNil()
	require.True(t, IsBuildFailure(err))

	var outerResults *multierror.Error
	outerResults = multierror.Append(err, fmt.Errorf("outer error: %w", errors.New("11")))
	outerErr := outerResults.ErrorOrNil()
	require.True(t, IsBuildFailure(outerErr))
}
