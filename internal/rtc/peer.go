package rtc

import (
	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/protocol"
)

// Configuration builds the ICE configuration for every peer connection of
// a session.
func Configuration(cfg *config.Config) pion.Configuration {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if cfg.UseRelay() {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// NewAPI builds a pion API with the default codecs and interceptors (NACK,
// RTCP reports, TWCC). se may be nil.
func NewAPI(se *pion.SettingEngine) (*pion.API, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, err
	}

	opts := []func(*pion.API){
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(registry),
	}
	if se != nil {
		opts = append(opts, pion.WithSettingEngine(*se))
	}
	return pion.NewAPI(opts...), nil
}

func toWire(c pion.ICECandidateInit) *protocol.Candidate {
	return &protocol.Candidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromWire(c *protocol.Candidate) pion.ICECandidateInit {
	return pion.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
