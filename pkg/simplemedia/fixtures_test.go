package simplemedia_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/storage"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

// recordingBus captures published events for assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []simplemedia.ProcessingEvent
}

func (b *recordingBus) Publish(ctx context.Context, evt simplemedia.ProcessingEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, evt)
	return nil
}

func (b *recordingBus) Events() []simplemedia.ProcessingEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]simplemedia.ProcessingEvent(nil), b.events...)
}

// copyResizer stands in for the image resizer: it copies input to output so
// derivative files exist without decoding real images.
type copyResizer struct {
	err error
}

func (r *copyResizer) Resize(ctx context.Context, inputPath string, maxEdgePx int, outputPath string) error {
	if r.err != nil {
		return r.err
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// stubTranscoder writes placeholder outputs and reports a fixed probe.
type stubTranscoder struct {
	probe    simplemedia.MediaProbe
	probeErr error
	err      error
}

func (t *stubTranscoder) writeOut(outputPath string) error {
	if t.err != nil {
		return t.err
	}
	return os.WriteFile(outputPath, []byte("media"), 0o644)
}

func (t *stubTranscoder) Transcode(ctx context.Context, inputPath, outputPath string) error {
	return t.writeOut(outputPath)
}

func (t *stubTranscoder) ExtractFrame(ctx context.Context, inputPath string, at time.Duration, outputPath string) error {
	return t.writeOut(outputPath)
}

func (t *stubTranscoder) Clip(ctx context.Context, inputPath string, duration time.Duration, outputPath string) error {
	return t.writeOut(outputPath)
}

func (t *stubTranscoder) Probe(ctx context.Context, inputPath string) (simplemedia.MediaProbe, error) {
	return t.probe, t.probeErr
}

func newMemoryGateway() (*storage.Gateway, *memorystorage.Backend, *memorystorage.Backend) {
	originals := memorystorage.New()
	assets := memorystorage.New()
	return storage.NewGateway(originals, assets, storage.DefaultGatewayConfig()), originals, assets
}

func readerOf(content string) io.Reader {
	return bytes.NewReader([]byte(content))
}

func writeLocalFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
