package command

import (
	"context"
	"strings"
	"testing"

	"github.com/hashgraph-online/poetry-registry-go/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdmin  = "0.0.1001"
	testAuthor = "0.0.2002"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	poems, err := registry.New(testAdmin)
	require.NoError(t, err)
	return poems
}

func TestParseOp(t *testing.T) {
	cases := map[string]Op{
		"publish":        OpPublish,
		" GET-TEXT ":     OpGetText,
		"owner_of":       OpOwnerOf,
		"token-uri":      OpTokenURI,
		"set-max-length": OpSetMaxLength,
		"set_paused":     OpSetPaused,
		"transfer-admin": OpTransferAdmin,
		"current_id":     OpCurrentID,
		"info":           OpInfo,
	}
	for input, expected := range cases {
		op, err := ParseOp(input)
		require.NoError(t, err, input)
		assert.Equal(t, expected, op, input)
	}

	_, err := ParseOp("burn")
	assert.Error(t, err)
}

func TestMutating(t *testing.T) {
	assert.True(t, OpPublish.Mutating())
	assert.True(t, OpSetPaused.Mutating())
	assert.False(t, OpGetText.Mutating())
	assert.False(t, OpInfo.Mutating())
}

func TestExecuteScenario(t *testing.T) {
	ctx := context.Background()
	poems := newTestRegistry(t)

	result, err := Execute(ctx, poems, testAuthor, Command{Op: OpPublish, Text: "hello"})
	require.NoError(t, err)
	require.NotNil(t, result.TokenID)
	assert.Equal(t, uint64(0), *result.TokenID)
	assert.Equal(t, testAuthor, result.Owner)

	result, err = Execute(ctx, poems, testAuthor, Command{Op: OpGetText, TokenID: 0})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)

	result, err = Execute(ctx, poems, testAuthor, Command{Op: OpOwnerOf, TokenID: 0})
	require.NoError(t, err)
	assert.Equal(t, testAuthor, result.Owner)

	result, err = Execute(ctx, poems, testAuthor, Command{Op: OpTokenURI, TokenID: 0})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.URI, "data:application/json;base64,"))

	_, err = Execute(ctx, poems, testAuthor, Command{Op: OpPublish, Text: strings.Repeat("a", 501)})
	assert.ErrorIs(t, err, registry.ErrTooLong)

	result, err = Execute(ctx, poems, testAdmin, Command{Op: OpSetMaxLength, MaxLength: 800})
	require.NoError(t, err)
	require.NotNil(t, result.Info)
	assert.Equal(t, 800, result.Info.MaxTextLength)

	result, err = Execute(ctx, poems, testAuthor, Command{Op: OpPublish, Text: strings.Repeat("a", 600)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), *result.TokenID)

	_, err = Execute(ctx, poems, testAdmin, Command{Op: OpSetPaused, Paused: true})
	require.NoError(t, err)
	_, err = Execute(ctx, poems, testAuthor, Command{Op: OpPublish, Text: "x"})
	assert.ErrorIs(t, err, registry.ErrPaused)

	_, err = Execute(ctx, poems, testAdmin, Command{Op: OpSetPaused, Paused: false})
	require.NoError(t, err)
	result, err = Execute(ctx, poems, testAuthor, Command{Op: OpPublish, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), *result.TokenID)

	result, err = Execute(ctx, poems, testAuthor, Command{Op: OpCurrentID})
	require.NoError(t, err)
	require.NotNil(t, result.CurrentID)
	assert.Equal(t, uint64(3), *result.CurrentID)
}

func TestExecuteAdminOperations(t *testing.T) {
	ctx := context.Background()
	poems := newTestRegistry(t)

	_, err := Execute(ctx, poems, testAuthor, Command{Op: OpSetPaused, Paused: true})
	assert.ErrorIs(t, err, registry.ErrUnauthorized)

	_, err = Execute(ctx, poems, testAdmin, Command{Op: OpTransferAdmin})
	assert.Error(t, err)

	result, err := Execute(ctx, poems, testAdmin, Command{Op: OpTransferAdmin, Account: testAuthor})
	require.NoError(t, err)
	assert.Equal(t, testAuthor, result.Info.Admin)

	result, err = Execute(ctx, poems, testAuthor, Command{Op: OpInfo})
	require.NoError(t, err)
	assert.Equal(t, registry.DefaultName, result.Info.Name)
	assert.Equal(t, testAuthor, result.Info.Admin)
}

func TestExecuteRejectsUnknownInput(t *testing.T) {
	ctx := context.Background()
	poems := newTestRegistry(t)

	_, err := Execute(ctx, nil, testAuthor, Command{Op: OpInfo})
	assert.Error(t, err)

	_, err = Execute(ctx, poems, testAuthor, Command{Op: "burn"})
	assert.Error(t, err)

	_, err = Execute(ctx, poems, testAuthor, Command{Op: OpGetText, TokenID: 7})
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestDecode(t *testing.T) {
	command, err := Decode([]byte(`{"op":"set-max-length","maxLength":900}`))
	require.NoError(t, err)
	assert.Equal(t, Command{Op: OpSetMaxLength, MaxLength: 900}, command)

	_, err = Decode([]byte(`{"op":"mint"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{`))
	assert.Error(t, err)
}
