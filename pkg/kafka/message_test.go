package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerationRequestValidate(t *testing.T) {
	t.Run("consolidated needs accounts", func(t *testing.T) {
		req := &GenerationRequest{Engine: EngineConsolidated, RTAID: 1}
		assert.Error(t, req.Validate())

		req.AccountIDs = []int64{10, 11}
		assert.NoError(t, req.Validate())
	})

	t.Run("nominee date window is optional but must parse", func(t *testing.T) {
		req := &GenerationRequest{Engine: EngineNominee, RTAID: 2}
		assert.NoError(t, req.Validate())

		req.Date = "2026-08-28"
		assert.NoError(t, req.Validate())

		req.Date = "28/08/2026"
		assert.Error(t, req.Validate())
	})

	t.Run("unknown engine", func(t *testing.T) {
		req := &GenerationRequest{Engine: "bulk", RTAID: 1}
		assert.Error(t, req.Validate())
	})

	t.Run("registrar required", func(t *testing.T) {
		req := &GenerationRequest{Engine: EngineNominee}
		assert.Error(t, req.Validate())
	})
}

func TestIncomingMessageParseRequest(t *testing.T) {
	msg := &IncomingMessage{
		Value: []byte(`{"engine":"consolidated","rta_id":1,"account_ids":[4,9]}`),
	}
	require.NoError(t, msg.ParseRequest())
	require.NotNil(t, msg.Request)
	assert.Equal(t, int64(1), msg.Request.RTAID)
	assert.Equal(t, []int64{4, 9}, msg.Request.AccountIDs)

	bad := &IncomingMessage{Value: []byte(`{"engine":`)}
	assert.Error(t, bad.ParseRequest())
}
