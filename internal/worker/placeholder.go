package worker

import "encoding/binary"

// SilencePlaceholder builds a silent 16-bit mono PCM WAV of the given
// duration. Stored in place of a failed synthesis so listeners keep their
// playback cadence.
func SilencePlaceholder(durationMillis int64, sampleRate int) Synthesis {
	if durationMillis < 0 {
		durationMillis = 0
	}
	samples := int(int64(sampleRate) * durationMillis / 1000)
	dataLen := samples * 2

	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))

	return Synthesis{
		Audio:          buf,
		ContentType:    "audio/wav",
		DurationMillis: durationMillis,
	}
}
