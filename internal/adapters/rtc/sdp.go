// Package rtc checks the WebRTC payloads callers relay to each other.
// Media never passes through the server; only offers, answers and ICE
// candidates do.
package rtc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkeye/Talkie/internal/domain"
	"github.com/pion/webrtc/v4"
)

const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// ICEServers are handed to clients so both sides gather the same candidates.
func ICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		urls = []string{"stun:stun.l.google.com:19302"}
	}
	return []webrtc.ICEServer{{URLs: urls}}
}

// Check validates payload for signal and returns it re-encoded.
// Offers and answers must parse as SDP and carry media matching kind.
func Check(signal string, payload []byte, kind domain.CallKind) (json.RawMessage, error) {
	switch signal {
	case SignalOffer, SignalAnswer:
		return checkDescription(signal, payload, kind)
	case SignalCandidate:
		return checkCandidate(payload)
	}
	return nil, domain.InvalidArgument("signal", "must be offer, answer or candidate")
}

func checkDescription(signal string, payload []byte, kind domain.CallKind) (json.RawMessage, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(payload, &desc); err != nil {
		return nil, domain.InvalidArgument("payload", "bad session description")
	}
	if desc.Type.String() != signal {
		return nil, domain.InvalidArgument("payload", fmt.Sprintf("type %s in %s", desc.Type, signal))
	}
	parsed, err := desc.Unmarshal()
	if err != nil {
		return nil, domain.InvalidArgument("sdp", err.Error())
	}

	var audio, video bool
	for _, md := range parsed.MediaDescriptions {
		if md.MediaName.Port.Value == 0 {
			continue
		}
		switch md.MediaName.Media {
		case "audio":
			audio = true
		case "video":
			video = true
		}
	}
	if !audio {
		return nil, domain.InvalidArgument("sdp", "no audio section")
	}
	if video && kind != domain.CallVideo {
		return nil, domain.InvalidArgument("sdp", "video offered in a voice call")
	}
	out, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("encode description: %w", err)
	}
	return out, nil
}

func checkCandidate(payload []byte) (json.RawMessage, error) {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &cand); err != nil {
		return nil, domain.InvalidArgument("payload", "bad candidate")
	}
	// an empty candidate marks end of gathering
	if c := strings.TrimPrefix(cand.Candidate, "a="); c != "" && !strings.HasPrefix(c, "candidate:") {
		return nil, domain.InvalidArgument("candidate", "malformed")
	}
	out, err := json.Marshal(cand)
	if err != nil {
		return nil, fmt.Errorf("encode candidate: %w", err)
	}
	return out, nil
}
