package tunnel

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/vpn-bridge/common"
)

func allStates() []State {
	ep := testEndpoint()
	ep.QuantumResistant = true
	loc := &Location{Country: "Sweden", City: "Gothenburg", Hostname: "se-got-wg-001"}
	return []State{
		DisconnectedState(),
		ConnectingState(ep, loc),
		ConnectedState(ep, nil),
		DisconnectingState(ActionNothing),
		DisconnectingState(ActionBlock),
		ErrorState(CauseAuthFailed, false),
		ErrorState(CauseVPNPermissionDenied, true),
	}
}

func TestCodec_RetainEndpointRoundTrip(t *testing.T) {
	codec := Codec{RetainEndpoint: true}

	for _, state := range allStates() {
		t.Run(state.String(), func(t *testing.T) {
			encoded, err := codec.Encode(state)
			require.NoError(t, err)

			decoded, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.True(t, state.Equal(decoded), "got %v, want %v", decoded, state)
		})
	}
}

func TestCodec_PlaceholderEndpoint(t *testing.T) {
	codec := Codec{}
	state := ConnectedState(testEndpoint(), &Location{City: "Gothenburg"})

	encoded, err := codec.Encode(state)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "185.65.134.1")
	assert.NotContains(t, encoded, "Gothenburg")

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, Connected, decoded.Kind)
	require.NotNil(t, decoded.Endpoint)
	assert.Equal(t, PlaceholderEndpoint(), *decoded.Endpoint)
	assert.Nil(t, decoded.Location)
}

func TestCodec_DropsOnlyEndpointData(t *testing.T) {
	codec := Codec{}
	for _, state := range allStates() {
		if state.Kind == Connecting || state.Kind == Connected {
			continue
		}
		encoded, err := codec.Encode(state)
		require.NoError(t, err)
		decoded, err := codec.Decode(encoded)
		require.NoError(t, err)
		assert.True(t, state.Equal(decoded), "got %v, want %v", decoded, state)
	}
}

func TestCodec_EncodeRejectsInvalid(t *testing.T) {
	_, err := Codec{}.Encode(State{Kind: Connected})
	assert.True(t, errors.Is(err, common.ErrInvalidState))
}

func TestCodec_DecodeRejectsGarbage(t *testing.T) {
	tests := []string{
		"",
		"connected",
		`{"state":"levitating"}`,
		`{"state":"connected","endpoint":{"address":"nowhere"}}`,
		`{"state":"disconnecting","after_disconnect":"explode"}`,
		`{"state":"error","cause":"unknown"}`,
	}

	for _, value := range tests {
		t.Run(value, func(t *testing.T) {
			_, err := Codec{}.Decode(value)
			assert.True(t, errors.Is(err, common.ErrInvalidState), "got %v", err)
		})
	}
}

func TestState_JSON(t *testing.T) {
	state := ConnectedState(testEndpoint(), &Location{Country: "Sweden"})

	data, err := json.Marshal(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"state": "connected",
		"endpoint": {"address": "185.65.134.1:51820", "protocol": "udp", "tunnel_type": "wireguard"},
		"location": {"country": "Sweden"}
	}`, string(data))

	var decoded State
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, state.Equal(decoded))
}
