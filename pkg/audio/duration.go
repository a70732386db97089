// Package audio measures the playback length of encoded audio clips.
//
// Measured duration is preferred over word-count estimation wherever the
// clip can actually be decoded; the reconciler's timing math is only as good
// as the duration it is given. MP3 clips are decoded with beep's MP3
// decoder, WAV clips by walking the RIFF container directly.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/mp3"

	"github.com/withleedh/learning-youtube-sub000/pkg/tts"
)

// Duration returns the playback length in seconds of the encoded clip.
func Duration(data []byte, format tts.AudioFormat) (float64, error) {
	switch format {
	case tts.FormatMP3:
		return durationMP3(data)
	case tts.FormatWAV:
		return durationWAV(data)
	default:
		return 0, fmt.Errorf("audio: unsupported format %q", format)
	}
}

// DurationFile returns the playback length in seconds of the audio file at
// path, inferring the container from the file extension.
func DurationFile(path string) (float64, error) {
	var format tts.AudioFormat
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		format = tts.FormatMP3
	case ".wav":
		format = tts.FormatWAV
	default:
		return 0, fmt.Errorf("audio: cannot infer format of %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("audio: read %q: %w", path, err)
	}
	return Duration(data, format)
}

func durationMP3(data []byte) (float64, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return 0, fmt.Errorf("audio: decode mp3: %w", err)
	}
	defer streamer.Close()

	return format.SampleRate.D(streamer.Len()).Seconds(), nil
}

// wavInfo holds the metadata extracted from a RIFF/WAVE container.
type wavInfo struct {
	SampleRate    int // samples per second (e.g., 22050, 24000, 48000)
	Channels      int // 1 = mono, 2 = stereo
	BitsPerSample int
	DataLen       int // byte length of the PCM data chunk
}

func durationWAV(data []byte) (float64, error) {
	info, err := parseWAV(data)
	if err != nil {
		return 0, err
	}
	bytesPerSecond := info.SampleRate * info.Channels * info.BitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0, errors.New("audio: WAV fmt chunk describes a zero byte rate")
	}
	return float64(info.DataLen) / float64(bytesPerSecond), nil
}

// parseWAV scans the RIFF/WAVE container and returns the format and data
// length from the "fmt " and "data" sub-chunks. Walking the chunks is more
// robust than assuming a fixed 44-byte header because the fmt chunk size
// varies between encoders.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("audio: clip too short to be a RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("audio: missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("audio: missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return wavInfo{}, errors.New("audio: data chunk precedes fmt chunk")
			}
			info.DataLen = chunkSize
			if max := len(wav) - (offset + 8); info.DataLen > max {
				// Truncated clip: trust the bytes present, not the header.
				info.DataLen = max
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("audio: missing data chunk")
}
