package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

func TestDecodeAndValidate_Register(t *testing.T) {
	var req RegisterRequest
	derr := DecodeAndValidate([]byte(`{"username":"alice","email":"a@x.io","password":"correcthorse1"}`), &req)
	require.Nil(t, derr)
	require.Equal(t, "alice", req.Username)
	require.Equal(t, "a@x.io", req.Email)
}

func TestDecodeAndValidate_BadJSON(t *testing.T) {
	var req RegisterRequest
	derr := DecodeAndValidate([]byte(`{"username":`), &req)
	require.NotNil(t, derr)
	require.Equal(t, domain.CodeValidationFailed, derr.Code)
}

func TestDecodeAndValidate_MissingFields(t *testing.T) {
	var req IssueTokenRequest
	derr := DecodeAndValidate([]byte(`{"username":"alice"}`), &req)
	require.NotNil(t, derr)
	require.Equal(t, domain.CodeValidationFailed, derr.Code)
	require.Contains(t, derr.Message, "password")
}

func TestPasswordLengthBoundary(t *testing.T) {
	ok := RegisterRequest{Username: "alice", Email: "a@x.io", Password: "12345678"}
	require.Nil(t, Validate(&ok), "8-char password must pass")

	short := RegisterRequest{Username: "alice", Email: "a@x.io", Password: "1234567"}
	require.NotNil(t, Validate(&short), "7-char password must fail")
}

func TestEmailValidation(t *testing.T) {
	bad := RegisterRequest{Username: "alice", Email: "not-an-email", Password: "12345678"}
	require.NotNil(t, Validate(&bad))
}

func TestRPCResponseEnvelopeShape(t *testing.T) {
	raw, err := json.Marshal(OK(map[string]int64{"account_id": 7}, "c-1"))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, true, m["success"])
	require.Equal(t, "c-1", m["correlation_id"])
	require.Contains(t, m, "data")

	raw, err = json.Marshal(Fail("auth.forbidden", "forbidden", "c-2"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, false, m["success"])
	require.Equal(t, "auth.forbidden", m["error_code"])
	require.Nil(t, m["data"], "failure data must be null")
}

func TestHelloFrameShape(t *testing.T) {
	raw, err := json.Marshal(NewHelloFrame("ws_1_abcd1234", 30))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, "hello", m["type"])
	require.Equal(t, "ws_1_abcd1234", m["connection_id"])
	require.Equal(t, float64(30), m["heartbeat_sec"])
}

func TestBroadcastFrameShape(t *testing.T) {
	raw, err := json.Marshal(NewBroadcastFrame("chat.message", json.RawMessage(`{"text":"hi"}`)))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	require.Equal(t, "event", m["type"])
	require.Equal(t, "chat.message", m["topic"])
}

func TestOutboundEnvelopeFrame_ErrorWithoutDetails(t *testing.T) {
	env := OutboundEnvelope{Event: "e", Status: "error"}
	frame, ok := env.Frame().(ErrorFrame)
	require.True(t, ok, "error status must render an error frame")
	require.Equal(t, "common.internal_error", frame.Error.Code)
}

func TestOutboundEnvelopeFrame_FinalWins(t *testing.T) {
	env := OutboundEnvelope{Event: "e", Status: "update", Final: true}
	frame := env.Frame().(EventFrame)
	require.Equal(t, EventStatusFinal, frame.Status)
}

func TestOutboundEnvelopeFrame_PreservesSyncFields(t *testing.T) {
	tick := int64(42)
	ver := int64(7)
	env := OutboundEnvelope{Event: "e", Status: "ok", Tick: &tick, StateVersion: &ver, RequestID: "r1"}
	frame := env.Frame().(EventFrame)
	require.Equal(t, &tick, frame.Tick)
	require.Equal(t, &ver, frame.StateVersion)
	require.Equal(t, "r1", frame.RequestID)
}
