package waveform

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

const (
	// DefaultChunkSeconds is the recording span one worker reads at once.
	DefaultChunkSeconds = 60
	// DefaultBufferSamples is the overlap kept on both sides of a chunk so
	// windows spanning a chunk boundary stay whole.
	DefaultBufferSamples = 200

	bytesPerSample = 4

	cacheNumCounters = 1 << 20
	cacheMaxBytes    = 256 << 20
)

// Reader loads waveform segments from a standardized float32 binary
// recording. Reads are grouped into disjoint time chunks with an overlap
// buffer; chunks are read by stateless parallel workers and segments that
// would run past the file bounds are zero-padded. Loaded segments are
// cached so iterative realignment rounds do not re-read the recording.
type Reader struct {
	path       string
	params     Params
	halfWindow int
	chunkSecs  int
	buffer     int
	workers    int
	frames     int64
	cache      *ristretto.Cache
	log        *zap.Logger
}

// ReaderOption adjusts a Reader at construction time.
type ReaderOption func(*Reader)

// WithChunkSeconds overrides the per-worker chunk span.
func WithChunkSeconds(secs int) ReaderOption {
	return func(r *Reader) { r.chunkSecs = secs }
}

// WithWorkers bounds chunk-read parallelism.
func WithWorkers(n int) ReaderOption {
	return func(r *Reader) { r.workers = n }
}

// NewReader opens a recording for segment loading. halfWindow is the
// number of samples kept on each side of a spike time; the returned
// segments span 2*halfWindow+1 samples per channel.
func NewReader(path string, params Params, halfWindow int, log *zap.Logger, opts ...ReaderOption) (*Reader, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if halfWindow <= 0 {
		return nil, fmt.Errorf("half window must be positive, got %d", halfWindow)
	}
	if halfWindow > DefaultBufferSamples {
		return nil, fmt.Errorf("half window %d exceeds chunk overlap buffer %d", halfWindow, DefaultBufferSamples)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat recording: %w", err)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("segment cache: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{
		path:       path,
		params:     params,
		halfWindow: halfWindow,
		chunkSecs:  DefaultChunkSeconds,
		buffer:     DefaultBufferSamples,
		workers:    1,
		frames:     info.Size() / int64(bytesPerSample*params.Channels),
		cache:      cache,
		log:        log,
	}, nil
}

// Frames returns the recording length in samples per channel.
func (r *Reader) Frames() int64 { return r.frames }

// Load returns one segment per spike time, shaped [spike][channel][sample].
// Times outside the recording produce zero-padded segments, never errors.
func (r *Reader) Load(ctx context.Context, times []int64) ([][][]float64, error) {
	out := make([][][]float64, len(times))

	chunkFrames := int64(r.params.SampleRate) * int64(r.chunkSecs)
	misses := make(map[int64][]int) // chunk index → positions in times
	for i, t := range times {
		if seg, ok := r.cache.Get(cacheKey(t, r.halfWindow)); ok {
			if typed, ok := seg.([][]float64); ok {
				out[i] = typed
				continue
			}
		}
		chunk := t / chunkFrames
		if t < 0 {
			chunk = 0
		}
		misses[chunk] = append(misses[chunk], i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	chunks := make([]int64, 0, len(misses))
	for c := range misses {
		chunks = append(chunks, c)
	}

	workers := r.workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for ci, chunk := range chunks {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(ci int, chunk int64) {
			defer wg.Done()
			defer func() { <-sem }()
			errs[ci] = r.loadChunk(chunk, chunkFrames, times, misses[chunk], out)
		}(ci, chunk)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// loadChunk reads one buffered chunk of the recording and cuts out every
// requested segment whose spike time falls inside it.
func (r *Reader) loadChunk(chunk, chunkFrames int64, times []int64, positions []int, out [][][]float64) error {
	start := chunk * chunkFrames
	end := start + chunkFrames
	frames, err := r.readFrames(start-int64(r.buffer), end+int64(r.buffer))
	if err != nil {
		return fmt.Errorf("chunk %d: %w", chunk, err)
	}

	for _, pos := range positions {
		t := times[pos]
		segment := make([][]float64, r.params.Channels)
		for ch := range segment {
			segment[ch] = make([]float64, 2*r.halfWindow+1)
		}
		base := t - (start - int64(r.buffer))
		for s := -r.halfWindow; s <= r.halfWindow; s++ {
			row := base + int64(s)
			if row < 0 || row >= int64(len(frames)) {
				continue // zero padded
			}
			for ch := 0; ch < r.params.Channels; ch++ {
				segment[ch][s+r.halfWindow] = frames[row][ch]
			}
		}
		out[pos] = segment
		r.cache.Set(cacheKey(t, r.halfWindow), segment,
			int64(r.params.Channels*(2*r.halfWindow+1)*8))
	}
	return nil
}

// readFrames returns the frame range [start, end), zero-padding any part
// outside the recording.
func (r *Reader) readFrames(start, end int64) ([][]float64, error) {
	n := end - start
	if n <= 0 {
		return nil, fmt.Errorf("empty frame range [%d,%d)", start, end)
	}
	frames := make([][]float64, n)
	for i := range frames {
		frames[i] = make([]float64, r.params.Channels)
	}

	readStart := max(start, 0)
	readEnd := min(end, r.frames)
	if readStart >= readEnd {
		return frames, nil // fully out of bounds: all zeros
	}

	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()

	stride := r.params.Channels * bytesPerSample
	raw := make([]byte, (readEnd-readStart)*int64(stride))
	if _, err := f.ReadAt(raw, readStart*int64(stride)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read recording: %w", err)
	}

	for i := int64(0); i < readEnd-readStart; i++ {
		row := frames[i+(readStart-start)]
		off := i * int64(stride)
		for ch := 0; ch < r.params.Channels; ch++ {
			bits := binary.LittleEndian.Uint32(raw[off+int64(ch*bytesPerSample):])
			row[ch] = float64(math.Float32frombits(bits))
		}
	}
	return frames, nil
}

func cacheKey(t int64, halfWindow int) string {
	return fmt.Sprintf("%d:%d", t, halfWindow)
}
