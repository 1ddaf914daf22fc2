package verify

import (
	"context"
	"fmt"

	"github.com/trigate/trigate/pkg/capture"
	"github.com/trigate/trigate/pkg/gate"
)

// Adapter exposes the scoring services as a gate.Verifier. It translates
// each service's wire verdict into a StepResult; transport and service
// errors are returned as errors and the orchestrator resolves them into
// failing results.
type Adapter struct {
	client *Client
}

// NewAdapter wraps the client.
func NewAdapter(client *Client) *Adapter {
	return &Adapter{client: client}
}

var _ gate.Verifier = (*Adapter)(nil)

// VerifyFace scores a face still against the profile.
func (a *Adapter) VerifyFace(ctx context.Context, seg *capture.Segment, profileID, subjectID string) (*gate.StepResult, error) {
	if seg == nil || seg.Modality != capture.FaceImage {
		return nil, fmt.Errorf("verify: face step needs a %s segment", capture.FaceImage)
	}
	res, err := a.client.Face.Check(ctx, &FaceCheckRequest{
		Image:     seg.Payload,
		ProfileID: profileID,
		SubjectID: subjectID,
	})
	if err != nil {
		return nil, err
	}
	sr := &gate.StepResult{
		Step:    gate.StepFace,
		Success: res.Passed,
		Message: res.Message,
		Raw:     res.Raw,
	}
	if res.Match != nil {
		sr.Score = &res.Match.Similarity
		sr.Label = res.Match.Confidence
	}
	return sr, nil
}

// VerifyVoice scores a voice recording against the profile.
func (a *Adapter) VerifyVoice(ctx context.Context, seg *capture.Segment, profileID, subjectID string) (*gate.StepResult, error) {
	if seg == nil || seg.Modality != capture.VoiceAudio {
		return nil, fmt.Errorf("verify: voice step needs a %s segment", capture.VoiceAudio)
	}
	res, err := a.client.Voice.Check(ctx, &VoiceCheckRequest{
		Audio:     seg.Payload,
		ProfileID: profileID,
		SubjectID: subjectID,
	})
	if err != nil {
		return nil, err
	}
	sr := &gate.StepResult{
		Step:    gate.StepVoice,
		Success: res.Passed,
		Message: res.Message,
		Raw:     res.Raw,
	}
	if res.Match != nil {
		sr.Score = &res.Match.Similarity
		sr.Label = res.Match.Confidence
	}
	return sr, nil
}

// VerifyLipsync checks an av clip for live speech.
func (a *Adapter) VerifyLipsync(ctx context.Context, seg *capture.Segment) (*gate.StepResult, error) {
	if seg == nil || seg.Modality != capture.AVClip {
		return nil, fmt.Errorf("verify: lipsync step needs a %s segment", capture.AVClip)
	}
	res, err := a.client.Lipsync.Check(ctx, &LipsyncCheckRequest{
		Video:    seg.Payload,
		Audio:    seg.AudioPayload,
		Duration: seg.Duration(),
	})
	if err != nil {
		return nil, err
	}
	confidence := res.Confidence
	return &gate.StepResult{
		Step:    gate.StepLipsync,
		Success: res.Detected,
		Message: res.Message,
		Score:   &confidence,
		Raw:     res.Raw,
	}, nil
}
