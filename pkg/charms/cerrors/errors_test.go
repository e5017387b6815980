package cerrors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CharmsDev/charms-go/pkg/charms/cerrors"
)

func TestErrors(t *testing.T) {
	t.Run("new", func(t *testing.T) {
		err := cerrors.NoSpell.New("tx %s carries no spell", "deadbeef")
		require.EqualError(t, err, "NoSpell (2): tx deadbeef carries no spell")
		require.Equal(t, "NoSpell", err.Reason())
		require.Equal(t, "tx deadbeef carries no spell", err.Detail())
		require.Equal(t, http.StatusNotFound, err.HTTPStatus())
	})

	t.Run("wrap preserves the cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := cerrors.DecodeError.Wrap(fmt.Errorf("decoding: %w", cause))
		require.ErrorIs(t, err, cause)
		require.True(t, cerrors.DecodeError.Is(err))
		require.False(t, cerrors.NoSpell.Is(err))
	})

	t.Run("from", func(t *testing.T) {
		t.Run("classified error passes through", func(t *testing.T) {
			orig := cerrors.CommitmentMismatch.New("digest mismatch")
			wrapped := fmt.Errorf("verifying: %w", orig)
			require.Equal(t, orig, cerrors.From(wrapped))
		})

		t.Run("unclassified error becomes DecodeError", func(t *testing.T) {
			err := cerrors.From(errors.New("something odd"))
			require.Equal(t, "DecodeError", err.Reason())
			require.Equal(t, "something odd", err.Detail())
		})
	})

	t.Run("status of", func(t *testing.T) {
		require.Equal(t, http.StatusBadRequest, cerrors.StatusOf("MalformedTransaction"))
		require.Equal(t, http.StatusNotFound, cerrors.StatusOf("NoSpell"))
		require.Equal(t, http.StatusFailedDependency, cerrors.StatusOf("MissingProvenance"))
		require.Equal(t, http.StatusUnprocessableEntity, cerrors.StatusOf("Unknown"))
	})
}
