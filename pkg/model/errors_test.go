package model_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/AnthonyCampos1234/Facsimile/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
)

func TestWithCause(t *testing.T) {
	cause := fmt.Errorf("dial: %w", context.DeadlineExceeded)
	err := goerr.Wrap(model.WithCause(model.ErrCompletionServiceUnavailable, cause), "completion failed")

	gt.True(t, errors.Is(err, model.ErrCompletionServiceUnavailable))
	gt.True(t, errors.Is(err, context.DeadlineExceeded))
	gt.True(t, model.IsRetryable(err))
	gt.False(t, errors.Is(err, model.ErrMalformedSourceData))
	gt.S(t, err.Error()).Contains("completion service unavailable: dial: context deadline exceeded")

	gt.True(t, model.WithCause(model.ErrPayloadNotFound, nil) == error(model.ErrPayloadNotFound))
}
