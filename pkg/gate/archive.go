package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"github.com/trigate/trigate/pkg/capture"
	"github.com/trigate/trigate/pkg/storage"
)

// Archiver persists finished attempts for later audit: one directory per
// attempt holding the outcome record and every captured segment.
type Archiver struct {
	store storage.FileStore
	log   *slog.Logger
}

// NewArchiver builds an Archiver over the given store.
func NewArchiver(store storage.FileStore, log *slog.Logger) *Archiver {
	if log == nil {
		log = slog.Default()
	}
	return &Archiver{store: store, log: log}
}

// SaveAttempt writes the outcome and segments under attempts/<attempt-id>/.
// Segments are written first so a partially archived attempt never has an
// outcome record without its media.
func (a *Archiver) SaveAttempt(ctx context.Context, outcome *Outcome, segments []*capture.Segment) error {
	dir := path.Join("attempts", outcome.AttemptID)
	for _, seg := range segments {
		if err := a.put(ctx, path.Join(dir, seg.ID+segmentExt(seg.Modality)), seg.Payload); err != nil {
			return fmt.Errorf("archive segment %s: %w", seg.ID, err)
		}
		if len(seg.AudioPayload) > 0 {
			if err := a.put(ctx, path.Join(dir, seg.ID+".wav"), seg.AudioPayload); err != nil {
				return fmt.Errorf("archive segment audio %s: %w", seg.ID, err)
			}
		}
		meta, err := json.Marshal(seg)
		if err != nil {
			return fmt.Errorf("encode segment meta %s: %w", seg.ID, err)
		}
		if err := a.put(ctx, path.Join(dir, seg.ID+".json"), meta); err != nil {
			return fmt.Errorf("archive segment meta %s: %w", seg.ID, err)
		}
	}
	record, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := a.put(ctx, path.Join(dir, "outcome.json"), record); err != nil {
		return fmt.Errorf("archive outcome: %w", err)
	}
	a.log.Info("attempt archived", "attempt_id", outcome.AttemptID, "segments", len(segments))
	return nil
}

func (a *Archiver) put(ctx context.Context, p string, data []byte) error {
	w, err := a.store.Write(ctx, p)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func segmentExt(m capture.Modality) string {
	switch m {
	case capture.FaceImage:
		return ".jpg"
	case capture.VoiceAudio:
		return ".wav"
	default:
		return ".mjpeg"
	}
}
