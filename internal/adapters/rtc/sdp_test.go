package rtc

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dkeye/Talkie/internal/domain"
	"github.com/stretchr/testify/require"
)

func sdpOf(sections ...string) string {
	lines := []string{
		"v=0",
		"o=- 4215775240449105457 2 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
	}
	for _, s := range sections {
		switch s {
		case "audio":
			lines = append(lines, "m=audio 9 UDP/TLS/RTP/SAVPF 111", "c=IN IP4 0.0.0.0", "a=rtpmap:111 opus/48000/2")
		case "video":
			lines = append(lines, "m=video 9 UDP/TLS/RTP/SAVPF 96", "c=IN IP4 0.0.0.0", "a=rtpmap:96 VP8/90000")
		}
	}
	return strings.Join(lines, "\r\n") + "\r\n"
}

func description(t *testing.T, typ, sdp string) []byte {
	b, err := json.Marshal(map[string]string{"type": typ, "sdp": sdp})
	require.NoError(t, err)
	return b
}

func TestCheck_VoiceOffer(t *testing.T) {
	req := require.New(t)

	out, err := Check(SignalOffer, description(t, "offer", sdpOf("audio")), domain.CallVoice)
	req.NoError(err)
	req.Contains(string(out), `"type":"offer"`)
}

func TestCheck_VideoInVoiceCallRejected(t *testing.T) {
	req := require.New(t)
	payload := description(t, "offer", sdpOf("audio", "video"))

	_, err := Check(SignalOffer, payload, domain.CallVoice)
	req.ErrorIs(err, domain.ErrInvalidArgument)

	_, err = Check(SignalOffer, payload, domain.CallVideo)
	req.NoError(err)
}

func TestCheck_TypeMustMatchSignal(t *testing.T) {
	_, err := Check(SignalAnswer, description(t, "offer", sdpOf("audio")), domain.CallVoice)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCheck_GarbageSDP(t *testing.T) {
	_, err := Check(SignalOffer, description(t, "offer", "hello"), domain.CallVoice)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCheck_Candidates(t *testing.T) {
	req := require.New(t)

	out, err := Check(SignalCandidate, []byte(`{"candidate":"candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`), domain.CallVoice)
	req.NoError(err)
	req.Contains(string(out), `"sdpMid":"0"`)

	_, err = Check(SignalCandidate, []byte(`{"candidate":""}`), domain.CallVoice)
	req.NoError(err)

	_, err = Check(SignalCandidate, []byte(`{"candidate":"rm -rf"}`), domain.CallVoice)
	req.ErrorIs(err, domain.ErrInvalidArgument)

	_, err = Check("bye", nil, domain.CallVoice)
	req.ErrorIs(err, domain.ErrInvalidArgument)
}

func TestICEServers_Default(t *testing.T) {
	s := ICEServers(nil)
	require.Len(t, s, 1)
	require.Equal(t, []string{"stun:stun.l.google.com:19302"}, s[0].URLs)
}
