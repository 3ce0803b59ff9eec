package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// TargetSampleRate is the canonical rate expected by the speech recognizer.
const TargetSampleRate = 16000

const targetBitDepth = 16

// Normalizer converts arbitrary voice-note payloads into canonical mono
// 16 kHz PCM WAV files under its work directory.
type Normalizer struct {
	workDir string
	log     *slog.Logger
}

func NewNormalizer(workDir string, log *slog.Logger) (*Normalizer, error) {
	if workDir == "" {
		return nil, errors.New("audio: work dir must not be empty")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("audio: create work dir: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{workDir: workDir, log: log}, nil
}

// Normalize decodes the payload at path and writes a mono 16 kHz WAV,
// returning the new file's path. The written file is verified: codecs whose
// export does not guarantee rate fidelity trigger a second resampling pass,
// and the first-pass intermediate is deleted before returning.
func (n *Normalizer) Normalize(path string) (string, error) {
	samples, rate, err := decodeFile(path)
	if err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", errors.New("audio: no samples decoded")
	}
	if rate != TargetSampleRate {
		samples = resampleLinear(samples, rate, TargetSampleRate)
	}

	wavPath, err := n.writeWAV(samples)
	if err != nil {
		return "", err
	}

	got, err := wavFileRate(wavPath)
	if err != nil {
		os.Remove(wavPath)
		return "", err
	}
	if got != TargetSampleRate {
		n.log.Debug("first-pass rate off target, resampling again", "path", wavPath, "rate", got)
		fixed, err := n.resampleWAVFile(wavPath)
		os.Remove(wavPath)
		if err != nil {
			return "", err
		}
		wavPath = fixed
	}
	return wavPath, nil
}

// resampleWAVFile re-reads an intermediate WAV and writes a fresh file at the
// target rate. The caller owns deletion of src.
func (n *Normalizer) resampleWAVFile(src string) (string, error) {
	samples, rate, err := ReadWAVSamples(src)
	if err != nil {
		return "", err
	}
	if rate != TargetSampleRate {
		samples = resampleLinear(samples, rate, TargetSampleRate)
	}
	return n.writeWAV(samples)
}

func (n *Normalizer) writeWAV(samples []float32) (string, error) {
	path := filepath.Join(n.workDir, uuid.NewString()+".wav")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("audio: create wav: %w", err)
	}

	enc := wav.NewEncoder(f, TargetSampleRate, targetBitDepth, 1, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: TargetSampleRate},
		Data:           float32SamplesToInt(samples),
		SourceBitDepth: targetBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("audio: finalize wav: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("audio: close wav: %w", err)
	}
	return path, nil
}

// resampleLinear converts between sample rates with linear interpolation,
// which is plenty for speech narrowband input.
func resampleLinear(in []float32, inRate, outRate int) []float32 {
	if inRate == outRate || len(in) == 0 {
		return in
	}
	ratio := float64(outRate) / float64(inRate)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		frac := float32(src - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i1]*frac
	}
	return out
}

func float32SamplesToInt(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		out[i] = int(clamp(float64(s), -1.0, 1.0) * 32767.0)
	}
	return out
}
